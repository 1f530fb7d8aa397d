package sync

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	gosync "sync"
	"testing"
	"time"
)

// fakeFile is one stored resource on the fake server.
type fakeFile struct {
	content []byte
	mtime   time.Time
}

// fakeServer is an in-memory Nextcloud-flavored WebDAV server for engine
// tests: PROPFIND over the stored tree, streamed GET, PUT honoring
// X-OC-MTime, idempotent DELETE, and a landing page carrying the
// Nextcloud identity marker.
type fakeServer struct {
	t   *testing.T
	srv *httptest.Server

	mu    gosync.Mutex
	files map[string]fakeFile // user-relative decoded path -> file

	gets      int
	puts      int
	deletes   int
	propfinds int
}

const fakeDavPrefix = "/remote.php/dav/files/alice"

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()

	f := &fakeServer{t: t, files: make(map[string]fakeFile)}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)

	return f
}

func (f *fakeServer) URL() string { return f.srv.URL }

func (f *fakeServer) Client() *http.Client { return f.srv.Client() }

// seed stores a file server-side without counting as client traffic.
func (f *fakeServer) seed(path, content string, mtimeSec int64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.files[path] = fakeFile{content: []byte(content), mtime: time.Unix(mtimeSec, 0).UTC()}
}

func (f *fakeServer) remove(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.files, path)
}

func (f *fakeServer) file(path string) (fakeFile, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, ok := f.files[path]

	return file, ok
}

// transferCounts returns the GET/PUT/DELETE totals seen so far.
func (f *fakeServer) transferCounts() (gets, puts, deletes int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.gets, f.puts, f.deletes
}

func (f *fakeServer) handle(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, fakeDavPrefix) {
		// Landing page: carries the identity marker.
		w.Write([]byte("<html><title>Nextcloud</title></html>"))
		return
	}

	rel := strings.Trim(strings.TrimPrefix(r.URL.Path, fakeDavPrefix), "/")

	switch r.Method {
	case "PROPFIND":
		f.handlePropfind(w, rel)
	case http.MethodGet:
		f.handleGet(w, rel)
	case http.MethodPut:
		f.handlePut(w, r, rel)
	case http.MethodDelete:
		f.handleDelete(w, rel)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeServer) handlePropfind(w http.ResponseWriter, rel string) {
	f.mu.Lock()
	f.propfinds++

	var b strings.Builder

	b.WriteString(`<?xml version="1.0"?><d:multistatus xmlns:d="DAV:">`)

	// Root collection entry.
	b.WriteString(fmt.Sprintf(
		`<d:response><d:href>%s/%s/</d:href><d:propstat><d:prop>`+
			`<d:getlastmodified>%s</d:getlastmodified>`+
			`<d:resourcetype><d:collection/></d:resourcetype>`+
			`</d:prop><d:status>HTTP/1.1 200 OK</d:status></d:propstat></d:response>`,
		fakeDavPrefix, escapeSegments(rel), time.Now().UTC().Format(http.TimeFormat)))

	for path, file := range f.files {
		if rel != "" && path != rel && !strings.HasPrefix(path, rel+"/") {
			continue
		}

		b.WriteString(fmt.Sprintf(
			`<d:response><d:href>%s/%s</d:href><d:propstat><d:prop>`+
				`<d:displayname>%s</d:displayname>`+
				`<d:getcontentlength>%d</d:getcontentlength>`+
				`<d:getlastmodified>%s</d:getlastmodified>`+
				`<d:getcontenttype>application/octet-stream</d:getcontenttype>`+
				`<d:resourcetype/>`+
				`</d:prop><d:status>HTTP/1.1 200 OK</d:status></d:propstat></d:response>`,
			fakeDavPrefix, escapeSegments(path), pathBase(path), len(file.content),
			file.mtime.Format(http.TimeFormat)))
	}

	b.WriteString(`</d:multistatus>`)
	f.mu.Unlock()

	w.WriteHeader(http.StatusMultiStatus)
	w.Write([]byte(b.String()))
}

func (f *fakeServer) handleGet(w http.ResponseWriter, rel string) {
	f.mu.Lock()
	f.gets++
	file, ok := f.files[rel]
	f.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Last-Modified", file.mtime.Format(http.TimeFormat))
	w.Write(file.content)
}

func (f *fakeServer) handlePut(w http.ResponseWriter, r *http.Request, rel string) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	mtime := time.Now().UTC()

	if header := r.Header.Get("X-OC-MTime"); header != "" {
		if sec, convErr := strconv.ParseInt(header, 10, 64); convErr == nil {
			mtime = time.Unix(sec, 0).UTC()
		}
	}

	f.mu.Lock()
	f.puts++
	f.files[rel] = fakeFile{content: body, mtime: mtime}
	f.mu.Unlock()

	w.WriteHeader(http.StatusCreated)
}

func (f *fakeServer) handleDelete(w http.ResponseWriter, rel string) {
	f.mu.Lock()
	f.deletes++
	_, ok := f.files[rel]
	delete(f.files, rel)
	f.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func escapeSegments(p string) string {
	if p == "" {
		return ""
	}

	segs := strings.Split(p, "/")

	for i := range segs {
		segs[i] = url.PathEscape(segs[i])
	}

	return strings.Join(segs, "/")
}

func pathBase(p string) string {
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}

	return p
}
