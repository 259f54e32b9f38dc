package v1alpha1_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"time"

	api "github.com/cropdesk/cropdesk/api/v1alpha1"
	"github.com/cropdesk/cropdesk/internal/config"
	handlers "github.com/cropdesk/cropdesk/internal/handlers/v1alpha1"
	"github.com/cropdesk/cropdesk/internal/mirror"
	"github.com/cropdesk/cropdesk/internal/reconciler"
	"github.com/cropdesk/cropdesk/internal/runner"
	"github.com/cropdesk/cropdesk/internal/service"
	"github.com/cropdesk/cropdesk/internal/store"
	"github.com/cropdesk/cropdesk/internal/tools"
	"github.com/cropdesk/cropdesk/internal/workspace"
	"github.com/go-chi/chi/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const toolPrelude = `#!/bin/sh
while [ $# -gt 0 ]; do
  case "$1" in
    --input) in="$2"; shift 2 ;;
    --output) out="$2"; shift 2 ;;
    --config) cfg="$2"; shift 2 ;;
    *) shift ;;
  esac
done
`

const pdfBody = "%PDF-1.4\n%fake document\n"

type server struct {
	dataDir  string
	toolRoot string
	store    store.Store
	router   http.Handler
}

func newServer(deadline time.Duration) *server {
	s := &server{dataDir: GinkgoT().TempDir()}
	s.toolRoot = filepath.Join(s.dataDir, "FlipkartCropper")
	Expect(os.MkdirAll(s.toolRoot, 0755)).To(Succeed())

	registry, err := tools.NewRegistry(
		tools.Tool{Key: "flipkart", Folder: "FlipkartCropper", Executable: "run.sh", Deadline: deadline},
	)
	Expect(err).To(BeNil())

	cfg, err := config.NewDefault()
	Expect(err).To(BeNil())
	cfg.Database.Name = filepath.Join(s.dataDir, "test.db")
	db, err := store.InitDB(cfg)
	Expect(err).To(BeNil())
	s.store = store.NewStore(db)
	Expect(s.store.InitialMigration(context.TODO())).To(Succeed())
	DeferCleanup(func() { _ = s.store.Close() })

	m, err := mirror.New()
	Expect(err).To(BeNil())

	manager := workspace.NewManager(s.dataDir, filepath.Join(s.dataDir, ".staging"))
	history := service.NewHistoryService(s.store, 10)
	jobs := service.NewJobService(
		registry,
		manager,
		runner.New("python3"),
		reconciler.New(20*time.Millisecond),
		history,
		m,
		service.Limits{MaxFiles: 2, MaxFileSize: 1024},
	)

	h := handlers.NewServiceHandler(jobs, service.NewArtifactService(registry, manager), history, service.NewToolService(registry))
	s.router = handlers.HandlerFromMux(h, chi.NewRouter())
	return s
}

func (s *server) writeTool(body string) {
	Expect(os.WriteFile(filepath.Join(s.toolRoot, "run.sh"), []byte(toolPrelude+body), 0755)).To(Succeed())
}

func (s *server) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

type upload struct {
	name        string
	contentType string
	body        string
}

func pdf(name string) upload {
	return upload{name: name, contentType: "application/pdf", body: pdfBody}
}

func uploadRequest(tool string, fields map[string]string, files ...upload) *http.Request {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for k, v := range fields {
		Expect(mw.WriteField(k, v)).To(Succeed())
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, api.UploadField, f.name))
		h.Set("Content-Type", f.contentType)
		part, err := mw.CreatePart(h)
		Expect(err).To(BeNil())
		_, err = part.Write([]byte(f.body))
		Expect(err).To(BeNil())
	}
	Expect(mw.Close()).To(Succeed())

	req := httptest.NewRequest(http.MethodPost, api.UploadUrl(tool), body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode[T any](rr *httptest.ResponseRecorder) T {
	var v T
	Expect(json.Unmarshal(rr.Body.Bytes(), &v)).To(Succeed())
	return v
}
