package main

import (
	"context"
	"net/http"
	_ "net/http/pprof"

	"github.com/rs/zerolog/log"

	"github.com/Meesho/BharatMLStack/schemaflow/internal/config"
	"github.com/Meesho/BharatMLStack/schemaflow/internal/schema"
	httpserver "github.com/Meesho/BharatMLStack/schemaflow/internal/server/http"
	"github.com/Meesho/BharatMLStack/schemaflow/pkg/etcd"
	"github.com/Meesho/BharatMLStack/schemaflow/pkg/logger"
	"github.com/Meesho/BharatMLStack/schemaflow/pkg/metric"
)

func main() {
	cfg := config.Init().Config
	logger.Init()
	metric.Init()
	schema.Init()

	go func() {
		if err := http.ListenAndServe(":8080", nil); err != nil {
			log.Error().Err(err).Msg("pprof listener exited")
		}
	}()

	if cfg.EtcdWatcherEnabled {
		watcher, err := etcd.NewWatcher(etcd.Options{
			Servers:  cfg.EtcdServer,
			Username: cfg.EtcdUsername,
			Password: cfg.EtcdPassword,
			BasePath: cfg.EtcdBasePath,
			AppName:  cfg.ApplicationName,
		}, config.SwapDynamic)
		if err != nil {
			log.Error().Err(err).Msg("Error building etcd watcher, dynamic config stays at defaults")
		} else if err := watcher.Start(context.Background()); err != nil {
			log.Error().Err(err).Msg("Error starting etcd watcher, dynamic config stays at defaults")
		} else {
			defer watcher.Stop()
		}
	}

	httpserver.Init()
	if err := httpserver.Run(); err != nil {
		log.Panic().Err(err).Msg("Error from running schemaflow api-server")
	}
}
