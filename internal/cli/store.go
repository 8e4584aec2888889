package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/tracked/internal/model"
	"github.com/roach88/tracked/internal/provider"
	"github.com/roach88/tracked/internal/provider/badger"
	"github.com/roach88/tracked/internal/provider/memory"
	"github.com/roach88/tracked/internal/provider/sqlite"
	"github.com/roach88/tracked/internal/schema"
)

// Backend names accepted by --backend.
const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
	BackendMemory = "memory"
)

// StoreOptions selects the record store for import and dump.
type StoreOptions struct {
	Backend  string
	Database string
}

func (o *StoreOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.Backend, "backend", BackendSQLite, "record store backend (sqlite|badger|memory)")
	cmd.Flags().StringVar(&o.Database, "db", "", "SQLite file or Badger directory (required unless --backend memory)")
}

// openBackend opens the configured backend. The returned closer is never nil.
func openBackend(o StoreOptions, logger *slog.Logger) (provider.Backend, io.Closer, error) {
	backend := strings.ToLower(o.Backend)
	if backend != BackendMemory && o.Database == "" {
		return nil, nil, fmt.Errorf("--db is required for the %s backend", backend)
	}
	switch backend {
	case BackendSQLite:
		b, err := sqlite.Open(o.Database, sqlite.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return b, b, nil
	case BackendBadger:
		cfg := badger.DefaultConfig(o.Database)
		cfg.Logger = logger
		b, err := badger.Open(cfg)
		if err != nil {
			return nil, nil, err
		}
		return b, b, nil
	case BackendMemory:
		return memory.New(), io.NopCloser(nil), nil
	}
	return nil, nil, fmt.Errorf("unknown backend %q (want sqlite, badger or memory)", o.Backend)
}

// session is a schema-built Env wired to an instrumented record store.
type session struct {
	env     *model.Env
	metrics *provider.Metrics
	reg     *prometheus.Registry
	closer  io.Closer
}

func (s *session) Close() error {
	return s.closer.Close()
}

// openSession loads the schema at path and binds its types to the store.
// Errors are reported through formatter and returned as ExitErrors.
func openSession(opts *RootOptions, store StoreOptions, formatter *OutputFormatter, cmd *cobra.Command) (*session, error) {
	logger := newLogger(opts, cmd.ErrOrStderr())

	path, err := schemaPath(opts, nil)
	if err != nil {
		return nil, formatter.Fail(ExitCommandError, ErrCodeMissingFlag, err.Error(), nil)
	}
	doc, err := schema.Load(path)
	if err != nil {
		return nil, failLoad(formatter, err)
	}

	backend, closer, err := openBackend(store, logger)
	if err != nil {
		return nil, formatter.Fail(ExitCommandError, ErrCodeStoreFailed, "failed to open record store", err)
	}

	reg := prometheus.NewRegistry()
	metrics := provider.NewMetrics(reg)
	p := provider.Instrument(provider.New(backend, provider.WithLogger(logger)), metrics, logger)

	env := model.NewEnv(model.WithProvider(p), model.WithLogger(logger))
	if _, err := schema.Build(env, doc); err != nil {
		closer.Close()
		return nil, failLoad(formatter, err)
	}
	formatter.VerboseLog("Schema %s: %d type(s), %s backend", path, len(doc.Types), store.Backend)
	return &session{env: env, metrics: metrics, reg: reg, closer: closer}, nil
}

// RequestCount is the number of provider requests per method and status.
type RequestCount struct {
	Resource string `json:"resource"`
	Method   string `json:"method"`
	Status   string `json:"status"`
	Count    int    `json:"count"`
}

// requestCounts reads the request counter back from the session registry.
func (s *session) requestCounts() []RequestCount {
	families, err := s.reg.Gather()
	if err != nil {
		return nil
	}
	var out []RequestCount
	for _, mf := range families {
		if mf.GetName() != "tracked_provider_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			rc := RequestCount{Count: int(m.GetCounter().GetValue())}
			for _, lp := range m.GetLabel() {
				switch lp.GetName() {
				case "resource":
					rc.Resource = lp.GetValue()
				case "method":
					rc.Method = lp.GetValue()
				case "status":
					rc.Status = lp.GetValue()
				}
			}
			out = append(out, rc)
		}
	}
	slices.SortFunc(out, func(a, b RequestCount) int {
		return strings.Compare(a.Resource+"/"+a.Method+"/"+a.Status, b.Resource+"/"+b.Method+"/"+b.Status)
	})
	return out
}
