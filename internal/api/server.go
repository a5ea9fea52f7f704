package api

import (
	"context"
	"net/http"
	"os"
	"strings"

	"evalassign/internal/auth"
	"evalassign/internal/ingest"
	"evalassign/internal/store"
	"evalassign/internal/webhooks"
)

type Server struct {
	Store  store.Store
	Pub    *webhooks.Publisher
	Auth   *auth.Verifier
	Broker EventBroker
}

// NewServer creates a Server. If DATABASE_URL is unset, uses in-memory store.
func NewServer() (*Server, error) {
	dsn := os.Getenv("DATABASE_URL")
	var s store.Store
	if strings.TrimSpace(dsn) == "" {
		s = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(dsn)
		if err != nil {
			return nil, err
		}
		// Run migrations (dev helper)
		if os.Getenv("DB_MIGRATE") != "false" {
			if err := sp.MigrateDir("db/migrations"); err != nil {
				return nil, err
			}
		}
		s = sp
	}
	var broker EventBroker
	if os.Getenv("REDIS_URL") != "" {
		if rb, err := NewRedisBroker(); err == nil {
			broker = rb
		} else {
			broker = NewBroker()
		}
	} else {
		broker = NewBroker()
	}
	if dir := os.Getenv("DATASET_DIR"); dir != "" {
		if err := seedFromSource(context.Background(), s, ingest.FileSource{Dir: dir}); err != nil {
			return nil, err
		}
	}
	return &Server{Store: s, Pub: webhooks.NewPublisher(s), Auth: auth.NewVerifierFromEnv(), Broker: broker}, nil
}

// seedFromSource loads a dataset drop into the default tenant. Used for
// local development and demo environments.
func seedFromSource(ctx context.Context, st store.Store, src ingest.Source) error {
	snap, err := src.Fetch()
	if err != nil {
		return err
	}
	if len(snap.Mileage) > 0 {
		if _, _, err := st.SaveMileage(ctx, defaultTenant, snap.Mileage); err != nil {
			return err
		}
	}
	if len(snap.Roster) > 0 {
		if _, _, err := st.SaveRoster(ctx, defaultTenant, snap.Roster); err != nil {
			return err
		}
	}
	if len(snap.Jobs) > 0 {
		if _, _, err := st.SaveJobs(ctx, defaultTenant, snap.Jobs); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) withTenant(r *http.Request) (context.Context, string) {
	tenant := s.getPrincipal(r).Tenant
	ctx := context.WithValue(r.Context(), ctxKeyTenant{}, tenant)
	return ctx, tenant
}

type ctxKeyTenant struct{}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store)
}
