package dispatch

import (
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gotap/tapd/param"
)

// maxMultipartMemory bounds the portion of a multipart request buffered
// in memory before spilling to temp files, mirroring the dispatcher's
// "concrete stand-in" role for the request-parsing concern spec.md §1
// leaves external.
const maxMultipartMemory = 32 << 20 // 32 MiB

// parseParams decodes r's body (or query string for GET) into a
// param.Set, per spec.md §6: application/x-www-form-urlencoded and
// multipart/form-data, with standard parameter names matched
// case-insensitively and everything else kept in Extras. Multipart file
// parts named "upload" are staged and turned into fetchable URIs via
// stage, and are only honored when uploadsEnabled is true.
func parseParams(r *http.Request, stage *uploadStage, uploadsEnabled bool) (param.Set, error) {
	s := param.NewSet()
	raw := map[string][]string{}

	ct := r.Header.Get("Content-Type")
	mediaType, _, _ := mime.ParseMediaType(ct)

	switch {
	case r.Method == http.MethodGet:
		if err := r.ParseForm(); err != nil {
			return s, fmt.Errorf("dispatch: parsing query string: %w", err)
		}
		raw = r.Form

	case mediaType == "multipart/form-data":
		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			return s, fmt.Errorf("dispatch: parsing multipart body: %w", err)
		}
		raw = r.MultipartForm.Value
		if uploadsEnabled && stage != nil {
			for field, parts := range r.MultipartForm.File {
				if !strings.EqualFold(field, "upload") {
					continue
				}
				for _, fh := range parts {
					f, err := fh.Open()
					if err != nil {
						return s, fmt.Errorf("dispatch: opening upload part: %w", err)
					}
					token, err := stage.stage(f)
					f.Close()
					if err != nil {
						return s, fmt.Errorf("dispatch: staging upload part: %w", err)
					}
					name := strings.TrimSuffix(fh.Filename, filepath.Ext(fh.Filename))
					s.Uploads = append(s.Uploads, param.Upload{
						Name: name,
						URI:  "http://" + r.Host + "/_uploads/" + token,
					})
				}
			}
		}

	default:
		if err := r.ParseForm(); err != nil {
			return s, fmt.Errorf("dispatch: parsing form body: %w", err)
		}
		raw = r.PostForm
	}

	for key, values := range raw {
		if len(values) == 0 {
			continue
		}
		value := values[0]
		switch strings.ToLower(key) {
		case "request":
			s.Request = value
		case "lang":
			s.Lang = value
		case "version":
			s.Version = value
		case "format":
			s.Format = value
		case "query":
			s.Query = value
		case "maxrec":
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return s, fmt.Errorf("dispatch: malformed MAXREC %q: %w", value, err)
			}
			s.MaxRec = n
		case "upload":
			uploads, err := param.ParseUploads(value)
			if err != nil {
				return s, err
			}
			s.Uploads = append(s.Uploads, uploads...)
		case "phase", "wait", "action", "executionduration", "destruction":
			s.Set(strings.ToLower(key), value)
		default:
			s.Set(key, value)
		}
	}

	return s, nil
}
