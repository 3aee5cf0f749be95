// Package etcd keeps the dynamic tracker configuration in sync with an
// etcd key: it seeds the current value at boot and applies every update
// the watch delivers.
package etcd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/Meesho/BharatMLStack/schemaflow/internal/config"
)

const (
	connectionTimeout = 5 * time.Second
	requestTimeout    = 5 * time.Second
	configKeySuffix   = "/dynamic-config"
)

// Options locate the dynamic config key. The watched key is
// <BasePath>/<AppName>/dynamic-config.
type Options struct {
	// Servers is a comma-separated endpoint list.
	Servers  string
	Username string
	Password string
	BasePath string
	AppName  string
}

// Watcher mirrors one etcd key holding the dynamic config as JSON.
// Updates are parsed on top of the defaults and handed to the swap
// callback; deleting the key restores the defaults.
type Watcher struct {
	conn   *clientv3.Client
	key    string
	onSwap func(config.DynamicConfig)
	cancel context.CancelFunc
}

func NewWatcher(opts Options, onSwap func(config.DynamicConfig)) (*Watcher, error) {
	if opts.Servers == "" {
		return nil, errors.New("etcd: no servers configured")
	}
	if onSwap == nil {
		return nil, errors.New("etcd: swap callback required")
	}
	conn, err := clientv3.New(clientv3.Config{
		Endpoints:           strings.Split(opts.Servers, ","),
		Username:            opts.Username,
		Password:            opts.Password,
		DialTimeout:         connectionTimeout,
		DialKeepAliveTime:   connectionTimeout,
		PermitWithoutStream: true,
	})
	if err != nil {
		return nil, fmt.Errorf("etcd: connect %s: %w", opts.Servers, err)
	}
	return &Watcher{
		conn:   conn,
		key:    strings.TrimSuffix(opts.BasePath, "/") + "/" + opts.AppName + configKeySuffix,
		onSwap: onSwap,
	}, nil
}

// Key returns the watched etcd key.
func (w *Watcher) Key() string {
	return w.key
}

// Start seeds the dynamic config from the current key value, then keeps
// watching until Stop or context cancellation.
func (w *Watcher) Start(ctx context.Context) error {
	ctx, w.cancel = context.WithCancel(ctx)
	if err := w.seed(ctx); err != nil {
		return err
	}
	go w.watch(ctx)
	return nil
}

// Stop ends the watch and closes the client connection.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	if w.conn != nil {
		if err := w.conn.Close(); err != nil {
			log.Warn().Err(err).Msg("Closing etcd connection failed")
		}
	}
}

func (w *Watcher) seed(ctx context.Context) error {
	getCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	resp, err := w.conn.Get(getCtx, w.key)
	if err != nil {
		return fmt.Errorf("etcd: read %s: %w", w.key, err)
	}
	if len(resp.Kvs) == 0 {
		log.Info().Msgf("No dynamic config at %s, keeping defaults", w.key)
		return nil
	}
	return w.apply(resp.Kvs[0].Value)
}

func (w *Watcher) watch(ctx context.Context) {
	watchChan := w.conn.Watch(ctx, w.key)
	for watchResp := range watchChan {
		if err := watchResp.Err(); err != nil {
			log.Error().Err(err).Msgf("Watch on %s failed", w.key)
			continue
		}
		for _, event := range watchResp.Events {
			switch event.Type {
			case clientv3.EventTypePut:
				if err := w.apply(event.Kv.Value); err != nil {
					log.Error().Err(err).Msgf("Ignoring bad dynamic config update at %s", w.key)
				}
			case clientv3.EventTypeDelete:
				w.onSwap(config.DefaultDynamicConfig())
				log.Info().Msgf("Dynamic config at %s deleted, defaults restored", w.key)
			}
		}
	}
}

// apply parses the raw JSON on top of the defaults, so omitted fields
// fall back instead of zeroing.
func (w *Watcher) apply(raw []byte) error {
	next := config.DefaultDynamicConfig()
	if err := json.Unmarshal(raw, &next); err != nil {
		return fmt.Errorf("etcd: parse dynamic config at %s: %w", w.key, err)
	}
	w.onSwap(next)
	log.Info().Msgf("Dynamic config applied from %s", w.key)
	return nil
}
