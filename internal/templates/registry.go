package templates

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/marcelrenan-web/Fisiotech-app/internal/config"
	"github.com/marcelrenan-web/Fisiotech-app/internal/dictation"
)

// Template is one loaded form template.
type Template struct {
	Manifest  Manifest
	Directory string
	// Uploaded marks templates registered at runtime via Upload, which take
	// precedence over static ones during lookup.
	Uploaded bool
}

// Catalog returns the template's field catalog.
func (t Template) Catalog() dictation.Catalog {
	return dictation.Catalog(t.Manifest.Fields)
}

// Registry discovers template manifests under the configured directory and
// serves lookups for the dictation core. Uploaded templates are searched
// before static ones. Registry is safe for concurrent use.
type Registry struct {
	cfg config.TemplatesConfig
	log *slog.Logger

	mu       sync.RWMutex
	static   map[string]Template
	uploaded map[string]Template
}

// NewRegistry scans cfg.Directory for template.yaml manifests. A malformed
// manifest is logged and skipped; discovery itself only fails when the
// directory cannot be walked.
func NewRegistry(cfg config.TemplatesConfig, logger *slog.Logger) (*Registry, error) {
	r := &Registry{
		cfg:      cfg,
		log:      logger.With(slog.String("component", "templates.registry")),
		static:   make(map[string]Template),
		uploaded: make(map[string]Template),
	}
	if err := r.discover(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) discover() error {
	root := r.cfg.Directory
	if root == "" {
		return errors.New("templates directory not configured")
	}
	if _, err := os.Stat(root); os.IsNotExist(err) {
		r.log.Warn("templates directory does not exist", slog.String("directory", root))
		return nil
	}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(d.Name(), "template.yaml") {
			if err := r.add(path, false); err != nil {
				r.log.Error("failed to load template", slog.String("path", path), slog.String("error", err.Error()))
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(r.static) == 0 {
		r.log.Warn("no templates discovered", slog.String("directory", root))
	} else {
		r.log.Info("templates discovered", slog.Int("count", len(r.static)))
	}
	return nil
}

func (r *Registry) add(manifestPath string, uploaded bool) error {
	m, err := Load(manifestPath)
	if err != nil {
		return fmt.Errorf("load manifest: %w", err)
	}
	if err := Validate(m); err != nil {
		return fmt.Errorf("validate manifest: %w", err)
	}
	t := Template{
		Manifest:  m,
		Directory: filepath.Dir(manifestPath),
		Uploaded:  uploaded,
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := strings.ToLower(m.Metadata.Name)
	if uploaded {
		r.uploaded[key] = t
	} else {
		r.static[key] = t
	}
	return nil
}

// ResolveTemplate maps a spoken template name to a known template. Uploaded
// templates are checked first, then static ones; matching is
// case-insensitive substring containment (spoken name inside the stored
// name), exact key match preferred.
func (r *Registry) ResolveTemplate(name string) (string, dictation.Catalog, bool) {
	q := strings.ToLower(strings.TrimSpace(name))
	if q == "" {
		return "", nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, pool := range []map[string]Template{r.uploaded, r.static} {
		if t, ok := pool[q]; ok {
			return t.Manifest.Metadata.Name, t.Catalog(), true
		}
		for key, t := range pool {
			if strings.Contains(key, q) {
				return t.Manifest.Metadata.Name, t.Catalog(), true
			}
		}
	}
	return "", nil, false
}

// Lookup returns the template registered under name.
func (r *Registry) Lookup(name string) (Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key := strings.ToLower(strings.TrimSpace(name))
	if t, ok := r.uploaded[key]; ok {
		return t, true
	}
	t, ok := r.static[key]
	return t, ok
}

// Names lists every registered template name, uploaded ones first.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.uploaded)+len(r.static))
	for _, t := range r.uploaded {
		names = append(names, t.Manifest.Metadata.Name)
	}
	for key, t := range r.static {
		if _, shadowed := r.uploaded[key]; !shadowed {
			names = append(names, t.Manifest.Metadata.Name)
		}
	}
	return names
}

// LoadGuide returns the raw bytes of the template's guide document. The
// caller renders it; the editable buffers never see this content.
func (r *Registry) LoadGuide(name string) ([]byte, error) {
	t, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("template %q not found", name)
	}
	if t.Manifest.Guide.Path == "" {
		return nil, fmt.Errorf("template %q has no guide document", name)
	}
	data, err := os.ReadFile(filepath.Join(t.Directory, t.Manifest.Guide.Path))
	if err != nil {
		return nil, fmt.Errorf("read guide for %q: %w", name, err)
	}
	return data, nil
}

// Upload registers a guide document uploaded at runtime as a free-form
// template. The bytes are written under the upload directory and a minimal
// manifest is synthesized around them.
func (r *Registry) Upload(data []byte, name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return errors.New("template name must not be empty")
	}
	dir := filepath.Join(r.cfg.UploadDir, strings.ToLower(trimmed))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}
	guidePath := filepath.Join(dir, "guide.pdf")
	if err := os.WriteFile(guidePath, data, 0o644); err != nil {
		return fmt.Errorf("write uploaded guide: %w", err)
	}

	t := Template{
		Manifest: Manifest{
			Metadata: Metadata{Name: trimmed, Version: "uploaded"},
			Guide:    Guide{Path: "guide.pdf"},
		},
		Directory: dir,
		Uploaded:  true,
	}
	r.mu.Lock()
	r.uploaded[strings.ToLower(trimmed)] = t
	r.mu.Unlock()
	r.log.Info("template uploaded", slog.String("name", trimmed))
	return nil
}

// Delete removes an uploaded template and its files. Static templates
// cannot be deleted at runtime.
func (r *Registry) Delete(name string) error {
	key := strings.ToLower(strings.TrimSpace(name))
	r.mu.Lock()
	t, ok := r.uploaded[key]
	if ok {
		delete(r.uploaded, key)
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("uploaded template %q not found", name)
	}
	if err := os.RemoveAll(t.Directory); err != nil {
		return fmt.Errorf("remove uploaded template files: %w", err)
	}
	return nil
}
