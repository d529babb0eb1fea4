package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crm-pulse/internal/category"
	"github.com/sells-group/crm-pulse/internal/crm"
	"github.com/sells-group/crm-pulse/internal/store"
	"github.com/sells-group/crm-pulse/internal/window"
	"github.com/sells-group/crm-pulse/pkg/zoho"
)

// Raw CRM pages are cached briefly so the calls and duration commands can
// reuse the records a preceding update fetched.
const fetchCacheTTL = 10 * time.Minute

const (
	maxLeadPages = 10
	maxDealPages = 50
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.Path
		if path == "" {
			path = "data/crm-pulse.db"
		}
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, eris.Wrap(err, "create store dir")
			}
		}
		return store.NewSQLite(path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initZoho(st store.Store) (zoho.Client, error) {
	if cfg.Zoho.RefreshToken == "" {
		return nil, eris.New("zoho refresh token is required (CRMPULSE_ZOHO_REFRESH_TOKEN)")
	}
	opts := []zoho.Option{zoho.WithRateLimit(5)}
	if st != nil {
		opts = append(opts, zoho.WithTokenCache(st))
	}
	return zoho.NewClient(zoho.Credentials{
		ClientID:     cfg.Zoho.ClientID,
		ClientSecret: cfg.Zoho.ClientSecret,
		RefreshToken: cfg.Zoho.RefreshToken,
		Region:       cfg.Zoho.Region,
	}, opts...), nil
}

func businessClock() (*window.Clock, error) {
	return window.New(cfg.Dashboard.Timezone)
}

func loadGazetteer() (*category.Gazetteer, error) {
	if cfg.Areas.File == "" {
		return category.DefaultGazetteer(), nil
	}
	return category.LoadGazetteer(cfg.Areas.File)
}

// cachedFetch looks up a module's raw records in the fetch cache before
// hitting the CRM API. Cache failures degrade to a direct fetch.
func cachedFetch(ctx context.Context, st store.Store, module string, fetch func(context.Context) ([]map[string]any, error)) ([]map[string]any, error) {
	if st != nil {
		payload, err := st.GetCachedFetch(ctx, module)
		if err != nil {
			zap.L().Warn("fetch cache read failed", zap.String("module", module), zap.Error(err))
		} else if payload != nil {
			var records []map[string]any
			if err := json.Unmarshal(payload, &records); err == nil {
				zap.L().Debug("fetch cache hit", zap.String("module", module), zap.Int("records", len(records)))
				return records, nil
			}
			zap.L().Warn("fetch cache payload corrupt", zap.String("module", module))
		}
	}

	records, err := fetch(ctx)
	if err != nil {
		return nil, err
	}

	if st != nil {
		payload, err := json.Marshal(records)
		if err == nil {
			if err := st.SetCachedFetch(ctx, module, payload, fetchCacheTTL); err != nil {
				zap.L().Warn("fetch cache write failed", zap.String("module", module), zap.Error(err))
			}
		}
	}
	return records, nil
}

func toRecords(raw []map[string]any) []crm.Record {
	out := make([]crm.Record, len(raw))
	for i, m := range raw {
		out[i] = crm.Record(m)
	}
	return out
}

func writeDataFile(name string, v any) (string, error) {
	dir := cfg.Data.Dir
	if dir == "" {
		dir = "data"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrap(err, "create data dir")
	}
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", eris.Wrapf(err, "marshal %s", name)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return "", eris.Wrapf(err, "write %s", path)
	}
	return path, nil
}

func persistSnapshot(ctx context.Context, st store.Store, kind string, v any, generatedAt time.Time) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return eris.Wrapf(err, "marshal snapshot %s", kind)
	}
	return st.UpsertSnapshot(ctx, kind, payload, generatedAt)
}
