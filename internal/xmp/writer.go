// Package xmp renders metadata records as XMP sidecar documents and
// writes them atomically next to their images.
package xmp

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rkubicek/rawsidecar/internal/metadata"
)

// Writer renders RDF/XML sidecars. Now is overridable so repeated runs
// over an unchanged tree can produce identical bytes.
type Writer struct {
	Now func() time.Time
}

func NewWriter() *Writer {
	return &Writer{Now: time.Now}
}

// SidecarPath returns the sidecar path for an image: same stem,
// extension replaced by .xmp.
func SidecarPath(imagePath string) string {
	ext := filepath.Ext(imagePath)
	return strings.TrimSuffix(imagePath, ext) + ".xmp"
}

// Write renders the record and writes it to path via a temp file and
// rename, so a crash never leaves a partial sidecar.
func (w *Writer) Write(path string, rec *metadata.Record) error {
	doc := w.Render(rec)

	tmp, err := os.CreateTemp(filepath.Dir(path), ".xmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp sidecar: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(doc); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write sidecar: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close sidecar: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename sidecar into place: %w", err)
	}
	return nil
}

// Render produces the UTF-8 RDF/XML document, no BOM.
func (w *Writer) Render(rec *metadata.Record) string {
	now := w.Now().UTC().Format("2006-01-02T15:04:05Z")

	var b strings.Builder
	b.WriteString(`<?xpacket begin="" id="W5M0MpCehiHzreSzNTczkc9d"?>` + "\n")
	b.WriteString(`<x:xmpmeta xmlns:x="adobe:ns:meta/">` + "\n")
	b.WriteString(` <rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#">` + "\n")
	b.WriteString(`  <rdf:Description rdf:about=""` + "\n")
	b.WriteString(`    xmlns:dc="http://purl.org/dc/elements/1.1/"` + "\n")
	b.WriteString(`    xmlns:xmp="http://ns.adobe.com/xap/1.0/"` + "\n")
	b.WriteString(`    xmlns:xmpRights="http://ns.adobe.com/xap/1.0/rights/"` + "\n")
	b.WriteString(`    xmlns:photoshop="http://ns.adobe.com/photoshop/1.0/"` + "\n")
	b.WriteString(`    xmlns:Iptc4xmpCore="http://iptc.org/std/Iptc4xmpCore/1.0/xmlns/"` + "\n")
	b.WriteString(`    xmlns:Iptc4xmpExt="http://iptc.org/std/Iptc4xmpExt/2008-02-29/"` + "\n")
	b.WriteString(`    xmlns:exif="http://ns.adobe.com/exif/1.0/">` + "\n")

	writeAlt(&b, "dc:title", rec.Title)
	writeAlt(&b, "dc:description", rec.Description)
	writeSeq(&b, "dc:creator", rec.Creator)
	writeAlt(&b, "dc:rights", rec.Rights)
	writeBag(&b, "dc:subject", rec.Keywords)

	fmt.Fprintf(&b, "   <xmpRights:Marked>%t</xmpRights:Marked>\n", rec.CopyrightMarked)
	writeAlt(&b, "xmpRights:UsageTerms", rec.UsageTerms)

	writeSimple(&b, "photoshop:Headline", rec.Caption)
	writeSimple(&b, "photoshop:Category", rec.Category)
	writeBag(&b, "Iptc4xmpCore:Scene", rec.SceneType)

	writeSimple(&b, "photoshop:City", rec.Location.City)
	writeSimple(&b, "photoshop:State", rec.Location.State)
	writeSimple(&b, "photoshop:Country", rec.Location.Country)
	writeSimple(&b, "Iptc4xmpCore:Location", rec.Location.Specific)

	writeContact(&b, rec.Contact)
	writeGPS(&b, rec.GPS)
	writeAlt(&b, "Iptc4xmpExt:AltTextAccessibility", rec.AltText)

	writeSimple(&b, "xmp:MetadataDate", now)
	writeSimple(&b, "xmp:ModifyDate", now)

	b.WriteString(`  </rdf:Description>` + "\n")
	b.WriteString(` </rdf:RDF>` + "\n")
	b.WriteString(`</x:xmpmeta>` + "\n")
	b.WriteString(`<?xpacket end="w"?>` + "\n")
	return b.String()
}

func writeSimple(b *strings.Builder, tag, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "   <%s>%s</%s>\n", tag, escape(value), tag)
}

func writeAlt(b *strings.Builder, tag, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "   <%s>\n    <rdf:Alt>\n     <rdf:li xml:lang=\"x-default\">%s</rdf:li>\n    </rdf:Alt>\n   </%s>\n", tag, escape(value), tag)
}

func writeSeq(b *strings.Builder, tag, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "   <%s>\n    <rdf:Seq>\n     <rdf:li>%s</rdf:li>\n    </rdf:Seq>\n   </%s>\n", tag, escape(value), tag)
}

func writeBag(b *strings.Builder, tag string, values []string) {
	if len(values) == 0 {
		return
	}
	fmt.Fprintf(b, "   <%s>\n    <rdf:Bag>\n", tag)
	for _, v := range values {
		fmt.Fprintf(b, "     <rdf:li>%s</rdf:li>\n", escape(v))
	}
	fmt.Fprintf(b, "    </rdf:Bag>\n   </%s>\n", tag)
}

func writeContact(b *strings.Builder, c *metadata.Contact) {
	if c == nil {
		return
	}
	b.WriteString("   <Iptc4xmpCore:CreatorContactInfo rdf:parseType=\"Resource\">\n")
	pairs := []struct{ tag, value string }{
		{"Iptc4xmpCore:CiAdrExtadr", c.Address},
		{"Iptc4xmpCore:CiAdrCity", c.City},
		{"Iptc4xmpCore:CiAdrRegion", c.Region},
		{"Iptc4xmpCore:CiAdrPcode", c.Postal},
		{"Iptc4xmpCore:CiAdrCtry", c.Country},
		{"Iptc4xmpCore:CiEmailWork", c.Email},
		{"Iptc4xmpCore:CiTelWork", c.Phone},
		{"Iptc4xmpCore:CiUrlWork", c.Website},
	}
	for _, p := range pairs {
		if p.value == "" {
			continue
		}
		fmt.Fprintf(b, "    <%s>%s</%s>\n", p.tag, escape(p.value), p.tag)
	}
	b.WriteString("   </Iptc4xmpCore:CreatorContactInfo>\n")
}

func writeGPS(b *strings.Builder, gps *metadata.GPS) {
	if gps == nil {
		return
	}
	writeSimple(b, "exif:GPSVersionID", "2.3.0.0")
	writeSimple(b, "exif:GPSLatitude", formatCoordinate(gps.Latitude, "N", "S"))
	writeSimple(b, "exif:GPSLongitude", formatCoordinate(gps.Longitude, "E", "W"))
	if gps.Altitude != nil {
		ref := "0"
		alt := *gps.Altitude
		if alt < 0 {
			ref = "1"
			alt = -alt
		}
		writeSimple(b, "exif:GPSAltitude", fmt.Sprintf("%d/100", int64(math.Round(alt*100))))
		writeSimple(b, "exif:GPSAltitudeRef", ref)
	}
}

// formatCoordinate renders signed decimal degrees in the XMP
// GPSCoordinate "DDD,MM.mmmmH" form.
func formatCoordinate(value float64, pos, neg string) string {
	hemi := pos
	if value < 0 {
		hemi = neg
		value = -value
	}
	degrees := math.Floor(value)
	minutes := (value - degrees) * 60
	return fmt.Sprintf("%d,%.6f%s", int(degrees), minutes, hemi)
}

func escape(s string) string {
	r := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&apos;",
	)
	return r.Replace(s)
}
