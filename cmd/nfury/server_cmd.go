package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/unhackeddev/nfury/internal/server"
	"github.com/unhackeddev/nfury/modules/loadtest/infrastructure/persistence"
	"github.com/unhackeddev/nfury/pkg/configuration"
)

func newServerCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "server [--port 5000]",
		Short: "Serve the REST and WebSocket API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf := configuration.Use()
			defer conf.Unload()
			if cmd.Flags().Changed("port") {
				conf.ServerPort = port
				if conf.GoAppEnvironment == configuration.Production {
					conf.SocketAddress = fmt.Sprintf(":%d", port)
				} else {
					conf.SocketAddress = fmt.Sprintf("localhost:%d", port)
				}
			}
			logger := conf.Logger()

			db, err := persistence.Open(conf.Database.Path)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			srv, err := server.Default(&server.DefaultOptions{
				Logger:        logger,
				Configuration: conf,
				DB:            db,
			})
			if err != nil {
				return err
			}

			logger.WithFields(logrus.Fields{
				"address": conf.SocketAddress,
				"db":      conf.Database.Path,
			}).Info("listening")
			return srv.Start(conf.SocketAddress)
		},
	}

	cmd.Flags().IntVar(&port, "port", 5000, "Port to listen on")
	return cmd
}
