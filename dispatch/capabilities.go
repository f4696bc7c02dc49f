package dispatch

import (
	"encoding/xml"
	"net/http"
	"time"
)

// availabilityDoc is the /availability liveness document (spec.md §6).
type availabilityDoc struct {
	XMLName   xml.Name  `xml:"availability"`
	Available bool      `xml:"available"`
	UpSince   time.Time `xml:"upSince"`
	Note      string    `xml:"note,omitempty"`
}

// capabilitiesDoc is a minimal capabilities document advertising the
// query languages, output formats and upload support this deployment
// accepts (spec.md §6's "capabilities" operation). It intentionally
// does not attempt the full VOSI/TAPRegExt schema, which is out of
// scope for the core (spec.md §1).
type capabilitiesDoc struct {
	XMLName        xml.Name `xml:"capabilities"`
	Languages      []string `xml:"language"`
	OutputFormats  []string `xml:"outputFormat"`
	UploadsEnabled bool     `xml:"uploadEnabled"`
	MaxRec         int64    `xml:"maxRec,omitempty"`
}

func writeXML(w http.ResponseWriter, status int, doc any) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	enc.Encode(doc)
}
