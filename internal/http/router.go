package http

import (
	"net/http"
	"strings"
)

// RouterConfig wires the dashboard handlers. Nil handlers leave their routes
// unregistered. RequireSession, when set, guards every route except the
// session endpoints so login stays reachable; Middleware wraps the whole
// router in reverse registration order.
type RouterConfig struct {
	Sessions       *SessionHandler
	Sync           *SyncHandler
	Approvals      *ApprovalHandler
	Cancellations  *CancellationHandler
	Mapping        *MappingHandler
	OfficeHours    *OfficeHoursHandler
	Overrides      *OverrideHandler
	Memory         *MemoryHandler
	RequireSession func(http.Handler) http.Handler
	Middleware     []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	api := http.NewServeMux()

	if cfg.Sync != nil {
		api.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Sync.Status(w, r)
		})
		api.HandleFunc("/sync", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			cfg.Sync.Run(w, r)
		})
		api.HandleFunc("/preview", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Sync.Preview(w, r)
		})
		api.HandleFunc("/preview/upcoming", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Sync.UpcomingPreview(w, r)
		})
		api.HandleFunc("/apply-mode", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPut {
				methodNotAllowed(w, http.MethodPut)
				return
			}
			cfg.Sync.SetApplyMode(w, r)
		})
		api.HandleFunc("/unifi/doors", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Sync.Doors(w, r)
		})
	}

	if cfg.Approvals != nil {
		api.HandleFunc("/approvals", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Approvals.List(w, r)
		})
		api.HandleFunc("/approvals/", func(w http.ResponseWriter, r *http.Request) {
			rest := strings.TrimPrefix(r.URL.Path, "/approvals/")
			idx := strings.LastIndex(rest, "/")
			if idx <= 0 {
				http.NotFound(w, r)
				return
			}
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			id, action := rest[:idx], rest[idx+1:]
			switch action {
			case "approve":
				cfg.Approvals.Approve(w, r, id)
			case "deny":
				cfg.Approvals.Deny(w, r, id)
			default:
				http.NotFound(w, r)
			}
		})
		api.HandleFunc("/safe-hours", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				cfg.Approvals.GetSafeHours(w, r)
			case http.MethodPut:
				cfg.Approvals.UpdateSafeHours(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPut)
			}
		})
		api.HandleFunc("/approved-names", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				cfg.Approvals.GetApprovedNames(w, r)
			case http.MethodPut:
				cfg.Approvals.UpdateApprovedNames(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPut)
			}
		})
	}

	if cfg.Cancellations != nil {
		api.HandleFunc("/cancellations", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				cfg.Cancellations.List(w, r)
			case http.MethodPost:
				cfg.Cancellations.Create(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPost)
			}
		})
		api.HandleFunc("/cancellations/", func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimPrefix(r.URL.Path, "/cancellations/")
			if id == "" {
				http.NotFound(w, r)
				return
			}
			if r.Method != http.MethodDelete {
				methodNotAllowed(w, http.MethodDelete)
				return
			}
			cfg.Cancellations.Restore(w, r, id)
		})
	}

	if cfg.Mapping != nil {
		api.HandleFunc("/mapping", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				cfg.Mapping.Get(w, r)
			case http.MethodPut:
				cfg.Mapping.Update(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPut)
			}
		})
	}

	if cfg.OfficeHours != nil {
		api.HandleFunc("/office-hours", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				cfg.OfficeHours.Get(w, r)
			case http.MethodPut:
				cfg.OfficeHours.Update(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPut)
			}
		})
	}

	if cfg.Overrides != nil {
		api.HandleFunc("/overrides", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				cfg.Overrides.Get(w, r)
			case http.MethodPut:
				cfg.Overrides.Update(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPut)
			}
		})
	}

	if cfg.Memory != nil {
		api.HandleFunc("/memory", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Memory.List(w, r)
		})
	}

	var protected http.Handler = api
	if cfg.RequireSession != nil {
		protected = cfg.RequireSession(api)
	}

	mux := http.NewServeMux()
	if cfg.Sessions != nil {
		mux.HandleFunc("/sessions", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			cfg.Sessions.Create(w, r)
		})
		mux.HandleFunc("/sessions/current", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodDelete {
				methodNotAllowed(w, http.MethodDelete)
				return
			}
			cfg.Sessions.DeleteCurrent(w, r)
		})
	}
	mux.Handle("/", protected)

	var handler http.Handler = mux
	if len(cfg.Middleware) > 0 {
		for i := len(cfg.Middleware) - 1; i >= 0; i-- {
			if cfg.Middleware[i] != nil {
				handler = cfg.Middleware[i](handler)
			}
		}
	}

	return handler
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}
