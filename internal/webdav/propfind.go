package webdav

import (
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ncdav/ncdav-sync/internal/davpath"
)

// Resource is one entry of a parsed multistatus document. Folder entries
// are retained so callers can enumerate remote directories; the sync
// engine filters them out before observation.
type Resource struct {
	RemoteURL     string // <d:href> verbatim
	RelativePath  string // href decoded relative to the DAV base
	DisplayName   string
	IsFolder      bool
	ContentLength int64
	ContentType   string
	RemoteMtimeMs int64 // getlastmodified as UTC milliseconds
}

// XML shapes for the DAV: multistatus document.
type multistatus struct {
	XMLName   xml.Name      `xml:"DAV: multistatus"`
	Responses []davResponse `xml:"response"`
}

type davResponse struct {
	Href      string     `xml:"href"`
	Propstats []propstat `xml:"propstat"`
}

type propstat struct {
	Status string  `xml:"status"`
	Prop   davProp `xml:"prop"`
}

type davProp struct {
	DisplayName   string       `xml:"displayname"`
	ContentLength string       `xml:"getcontentlength"`
	LastModified  string       `xml:"getlastmodified"`
	ContentType   string       `xml:"getcontenttype"`
	ResourceType  resourcetype `xml:"resourcetype"`
}

type resourcetype struct {
	Collection *struct{} `xml:"collection"`
}

// ParseMultistatus decodes a PROPFIND multistatus body into resource
// records. A malformed document is an error; an individual response
// missing its href or getlastmodified is logged and skipped so one broken
// entry cannot sink the whole snapshot.
func ParseMultistatus(body []byte, logger *slog.Logger) ([]Resource, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var ms multistatus

	if err := xml.Unmarshal(body, &ms); err != nil {
		return nil, fmt.Errorf("webdav: parsing multistatus: %w", err)
	}

	resources := make([]Resource, 0, len(ms.Responses))

	for i := range ms.Responses {
		res, ok := parseResponse(&ms.Responses[i], logger)
		if !ok {
			continue
		}

		resources = append(resources, res)
	}

	return resources, nil
}

// parseResponse converts one <d:response> into a Resource. Returns
// ok=false when mandatory fields are missing or unparsable.
func parseResponse(r *davResponse, logger *slog.Logger) (Resource, bool) {
	if r.Href == "" {
		logger.Warn("multistatus response missing href, skipping")
		return Resource{}, false
	}

	prop := mergeProps(r.Propstats)

	rel, err := davpath.HrefToRelative(r.Href)
	if err != nil {
		logger.Warn("multistatus response with undecodable href, skipping",
			slog.String("href", r.Href), slog.String("error", err.Error()))
		return Resource{}, false
	}

	if prop.LastModified == "" {
		logger.Warn("multistatus response missing getlastmodified, skipping",
			slog.String("href", r.Href))
		return Resource{}, false
	}

	mtime, err := http.ParseTime(prop.LastModified)
	if err != nil {
		logger.Warn("multistatus response with unparsable getlastmodified, skipping",
			slog.String("href", r.Href), slog.String("value", prop.LastModified))
		return Resource{}, false
	}

	var length int64

	if prop.ContentLength != "" {
		if n, convErr := strconv.ParseInt(prop.ContentLength, 10, 64); convErr == nil {
			length = n
		}
	}

	return Resource{
		RemoteURL:     r.Href,
		RelativePath:  rel,
		DisplayName:   prop.DisplayName,
		IsFolder:      prop.ResourceType.Collection != nil,
		ContentLength: length,
		ContentType:   prop.ContentType,
		RemoteMtimeMs: mtime.UTC().UnixMilli(),
	}, true
}

// mergeProps folds all propstat blocks into one prop view. Servers split
// found and not-found properties across propstats; the found values win.
func mergeProps(stats []propstat) davProp {
	var merged davProp

	for i := range stats {
		p := &stats[i].Prop

		if merged.DisplayName == "" {
			merged.DisplayName = p.DisplayName
		}

		if merged.ContentLength == "" {
			merged.ContentLength = p.ContentLength
		}

		if merged.LastModified == "" {
			merged.LastModified = p.LastModified
		}

		if merged.ContentType == "" {
			merged.ContentType = p.ContentType
		}

		if merged.ResourceType.Collection == nil {
			merged.ResourceType.Collection = p.ResourceType.Collection
		}
	}

	return merged
}
