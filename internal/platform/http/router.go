package http

import (
	"encoding/json"
	stdhttp "net/http"
	"os"
	"strings"
	"sync"

	yaml "gopkg.in/yaml.v3"

	"github.com/faeln1/go-mockup-api/internal/app/controllers"
	"github.com/faeln1/go-mockup-api/internal/app/services"
	"github.com/faeln1/go-mockup-api/internal/platform/auth"
	"github.com/faeln1/go-mockup-api/internal/platform/middleware"
	"github.com/faeln1/go-mockup-api/pkg/logger"
)

type RouterConfig struct {
	AuthCtrl      *controllers.AuthController
	ProjectCtrl   *controllers.ProjectController
	DesignCtrl    *controllers.DesignController
	RoomCtrl      *controllers.RoomController
	Registry      *services.RoomRegistry
	Issuer        *auth.Issuer
	Logger        logger.Logger
	SwaggerEnable bool
	DocsPath      string
	MasterToken   string
	Features      map[string]bool
}

// TokenValidator accepts the master token or a JWT from the issuer.
func TokenValidator(masterToken string, issuer *auth.Issuer) middleware.TokenValidator {
	return func(token string, _ *stdhttp.Request) (auth.Identity, bool) {
		if masterToken != "" && token == masterToken {
			return auth.Identity{Master: true}, true
		}
		if !issuer.Enabled() {
			return auth.Identity{}, false
		}
		id, err := issuer.Verify(token)
		if err != nil {
			return auth.Identity{}, false
		}
		return id, true
	}
}

func NewRouter(cfg RouterConfig) stdhttp.Handler {
	mux := stdhttp.NewServeMux()
	authed := middleware.BearerAuth(TokenValidator(cfg.MasterToken, cfg.Issuer))

	notFound := func(w stdhttp.ResponseWriter) {
		writeJSON(w, stdhttp.StatusNotFound, map[string]string{"error": "endpoint not found"})
	}
	methodNotAllowed := func(w stdhttp.ResponseWriter) {
		writeJSON(w, stdhttp.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}

	mux.HandleFunc("/", func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		if r.URL.Path != "/" {
			notFound(w)
			return
		}
		if r.Method != stdhttp.MethodGet {
			methodNotAllowed(w)
			return
		}
		connections := 0
		if cfg.Registry != nil {
			connections = cfg.Registry.Count()
		}
		writeJSON(w, stdhttp.StatusOK, map[string]any{
			"status":      "ok",
			"name":        "Mockup Studio API",
			"version":     "0.1.0",
			"description": "Design storage, AI generation and realtime collaboration rooms",
			"features":    cfg.Features,
			"rooms": map[string]any{
				"connections": connections,
			},
			"endpoints": map[string]string{
				"health":        "/health",
				"verify_creds":  "/verify-creds",
				"documentation": "/docs",
				"openapi_yaml":  "/openapi.yaml",
				"openapi_json":  "/openapi.json",
			},
		})
	})

	mux.HandleFunc("/health", func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		writeJSON(w, stdhttp.StatusOK, map[string]string{"status": "ok"})
	})

	mux.Handle("/verify-creds", authed(stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		if r.Method != stdhttp.MethodPost {
			methodNotAllowed(w)
			return
		}
		id, _ := auth.FromContext(r.Context())
		tokenType := "user"
		if id.Master {
			tokenType = "master"
		}
		writeJSON(w, stdhttp.StatusOK, map[string]any{
			"valid":     true,
			"tokenType": tokenType,
			"userId":    id.UserID,
			"userName":  id.UserName,
			"status":    "authenticated",
		})
	})))

	if cfg.SwaggerEnable {
		docsPath := cfg.DocsPath
		if docsPath == "" {
			docsPath = "docs/openapi.yaml"
		}
		var (
			once     sync.Once
			yamlData []byte
			yamlErr  error
		)
		loadYAML := func() ([]byte, error) {
			once.Do(func() { yamlData, yamlErr = os.ReadFile(docsPath) })
			return yamlData, yamlErr
		}
		mux.HandleFunc("/openapi.yaml", func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
			data, err := loadYAML()
			if err != nil {
				w.WriteHeader(stdhttp.StatusNotFound)
				return
			}
			w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
			_, _ = w.Write(data)
		})
		mux.HandleFunc("/openapi.json", func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
			data, err := loadYAML()
			if err != nil {
				w.WriteHeader(stdhttp.StatusNotFound)
				return
			}
			var v any
			if err := yaml.Unmarshal(data, &v); err != nil {
				w.WriteHeader(stdhttp.StatusInternalServerError)
				return
			}
			jsonBytes, err := json.Marshal(v)
			if err != nil {
				w.WriteHeader(stdhttp.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			_, _ = w.Write(jsonBytes)
		})
		mux.HandleFunc("/docs", func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(`<!DOCTYPE html><html><head><title>API Docs</title><link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css"/></head><body><div id="swagger-ui"></div><script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script><script>window.onload=()=>{SwaggerUIBundle({url:'/openapi.yaml',dom_id:'#swagger-ui'});};</script></body></html>`))
		})
	}

	if cfg.AuthCtrl != nil {
		mux.Handle("/auth/token", authed(stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
			if r.Method != stdhttp.MethodPost {
				methodNotAllowed(w)
				return
			}
			cfg.AuthCtrl.Issue(w, r)
		})))
	}

	if cfg.ProjectCtrl != nil {
		projects := authed(stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
			// /projects, /projects/{id}, /projects/{id}/designs
			segments := splitSegments(strings.TrimPrefix(r.URL.Path, "/projects"))
			switch len(segments) {
			case 0:
				switch r.Method {
				case stdhttp.MethodGet:
					cfg.ProjectCtrl.List(w, r)
				case stdhttp.MethodPost:
					cfg.ProjectCtrl.Create(w, r)
				default:
					methodNotAllowed(w)
				}
			case 1:
				switch r.Method {
				case stdhttp.MethodGet:
					cfg.ProjectCtrl.Get(w, r, segments[0])
				case stdhttp.MethodDelete:
					cfg.ProjectCtrl.Delete(w, r, segments[0])
				default:
					methodNotAllowed(w)
				}
			case 2:
				if segments[1] != "designs" {
					notFound(w)
					return
				}
				switch r.Method {
				case stdhttp.MethodGet:
					cfg.ProjectCtrl.ListDesigns(w, r, segments[0])
				case stdhttp.MethodPost:
					cfg.ProjectCtrl.CreateDesign(w, r, segments[0])
				default:
					methodNotAllowed(w)
				}
			default:
				notFound(w)
			}
		}))
		mux.Handle("/projects", projects)
		mux.Handle("/projects/", projects)
	}

	if cfg.DesignCtrl != nil {
		mux.Handle("/designs/", authed(stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
			segments := splitSegments(strings.TrimPrefix(r.URL.Path, "/designs/"))
			if len(segments) == 0 {
				notFound(w)
				return
			}
			designID := segments[0]
			if len(segments) == 1 {
				if r.Method != stdhttp.MethodGet {
					methodNotAllowed(w)
					return
				}
				cfg.DesignCtrl.Get(w, r, designID)
				return
			}

			sub := segments[1:]
			switch sub[0] {
			case "versions":
				switch {
				case len(sub) == 1 && r.Method == stdhttp.MethodGet:
					cfg.DesignCtrl.ListVersions(w, r, designID)
				case len(sub) == 1 && r.Method == stdhttp.MethodPost:
					cfg.DesignCtrl.SaveVersion(w, r, designID)
				case len(sub) == 2 && r.Method == stdhttp.MethodGet:
					cfg.DesignCtrl.GetVersion(w, r, designID, sub[1])
				case len(sub) == 3 && sub[2] == "restore" && r.Method == stdhttp.MethodPost:
					cfg.DesignCtrl.RestoreVersion(w, r, designID, sub[1])
				case len(sub) > 3 || (len(sub) == 3 && sub[2] != "restore"):
					notFound(w)
				default:
					methodNotAllowed(w)
				}
			case "generate", "assets", "deploy":
				if len(sub) != 1 {
					notFound(w)
					return
				}
				if r.Method != stdhttp.MethodPost {
					methodNotAllowed(w)
					return
				}
				switch sub[0] {
				case "generate":
					cfg.DesignCtrl.Generate(w, r, designID)
				case "assets":
					cfg.DesignCtrl.UploadAsset(w, r, designID)
				default:
					cfg.DesignCtrl.Deploy(w, r, designID)
				}
			case "deployments":
				if len(sub) != 1 {
					notFound(w)
					return
				}
				if r.Method != stdhttp.MethodGet {
					methodNotAllowed(w)
					return
				}
				cfg.DesignCtrl.ListDeployments(w, r, designID)
			default:
				notFound(w)
			}
		})))
	}

	if cfg.RoomCtrl != nil {
		rooms := authed(stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
			segments := splitSegments(strings.TrimPrefix(r.URL.Path, "/rooms"))
			if r.Method != stdhttp.MethodGet {
				methodNotAllowed(w)
				return
			}
			switch {
			case len(segments) == 0:
				cfg.RoomCtrl.List(w, r)
			case len(segments) == 1:
				cfg.RoomCtrl.Get(w, r, segments[0])
			case len(segments) == 2 && segments[1] == "ws":
				cfg.RoomCtrl.Connect(w, r, segments[0])
			case len(segments) == 2 && segments[1] == "invite.png":
				cfg.RoomCtrl.Invite(w, r, segments[0])
			default:
				notFound(w)
			}
		}))
		mux.Handle("/rooms", rooms)
		mux.Handle("/rooms/", rooms)
	}

	var handler stdhttp.Handler = mux
	log := cfg.Logger
	if log == nil {
		log = logger.Noop
	}
	handler = middleware.Logging(log)(handler)
	handler = middleware.CORS(handler)
	return handler
}

func splitSegments(path string) []string {
	raw := strings.Split(path, "/")
	out := make([]string, 0, len(raw))
	for _, segment := range raw {
		if segment == "" {
			continue
		}
		out = append(out, segment)
	}
	return out
}

func writeJSON(w stdhttp.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
