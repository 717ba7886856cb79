/*
Copyright 2024 The Rojo Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rojo-rbx/rojo/pkg/changeproc"
	"github.com/rojo-rbx/rojo/pkg/project"
	"github.com/rojo-rbx/rojo/pkg/queue"
	"github.com/rojo-rbx/rojo/pkg/session"
	"github.com/rojo-rbx/rojo/pkg/suppression"
	"github.com/rojo-rbx/rojo/pkg/vfs"
)

// defaultServePort is the port domsync listens on absent a project-level
// servePort override, matching the conventional Rojo default.
const defaultServePort = 34872

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve <project.project.json5>",
	Short: "Watch a project directory and serve two-way sync over HTTP",
	Long: `serve loads a project file, builds the initial DOM from its $path
trees, starts a filesystem watch rooted at the project's own directory, and
exposes an HTTP+websocket API: POST /write accepts a client PatchSet and
feeds it through the single-writer Change Processor; GET /subscribe streams
every applied patch set, from either source, back to connected clients.`,
	Args: cobra.ExactArgs(1),
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "HTTP port to listen on (defaults to the project's servePort, or 34872)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	projectPath := args[0]
	p, err := project.Load(projectPath)
	if err != nil {
		return fmt.Errorf("loading project: %w", err)
	}

	store, pathRoots, err := loadProject(p)
	if err != nil {
		return fmt.Errorf("building DOM: %w", err)
	}
	log.Printf("[domsync] loaded %d instance(s) under %d path root(s)", store.Len(), len(pathRoots))

	adapter, err := vfs.New(p.BaseDir)
	if err != nil {
		return fmt.Errorf("starting filesystem watch on %s: %w", p.BaseDir, err)
	}
	defer adapter.Close()

	suppress := suppression.New()
	q := queue.New()
	proc := changeproc.New(store, adapter, suppress, q)

	procDone := make(chan struct{})
	go func() {
		proc.Run()
		close(procDone)
	}()

	srv := session.NewServer(proc, q)
	hubDone := make(chan struct{})
	go srv.Run(hubDone)

	port := servePort
	if port == 0 {
		port = p.ServePort
	}
	if port == 0 {
		port = defaultServePort
	}

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: srv.Handler(),
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("[domsync] serving %s on :%d", p.Name, port)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("[domsync] received %s, shutting down", sig)
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Printf("[domsync] http shutdown: %v", err)
	}
	close(hubDone)
	proc.Shutdown()
	<-procDone

	return nil
}
