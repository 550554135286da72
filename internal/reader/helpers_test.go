package reader

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
	"testing"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/encoding/unicode"
)

type epubChapter struct {
	file  string
	title string // NCX label, empty to leave it out of the NCX
	body  string // inner <body> markup
	// dangling leaves the file out of the manifest, so its itemref
	// points at nothing
	dangling bool
}

// buildEPUB assembles a minimal EPUB 2 archive in memory.
func buildEPUB(t *testing.T, title string, chapters []epubChapter) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	write := func(name, content string, method uint16) {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: method})
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	write("mimetype", "application/epub+zip", zip.Store)
	write("META-INF/container.xml", `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`, zip.Deflate)

	var manifest, spine, nav strings.Builder
	for i, ch := range chapters {
		id := fmt.Sprintf("c%d", i)
		if ch.dangling {
			fmt.Fprintf(&spine, `<itemref idref="%s"/>`+"\n", id)
			continue
		}
		fmt.Fprintf(&manifest, `<item id="%s" href="%s" media-type="application/xhtml+xml"/>`+"\n", id, ch.file)
		fmt.Fprintf(&spine, `<itemref idref="%s"/>`+"\n", id)
		if ch.title != "" {
			fmt.Fprintf(&nav, `<navPoint id="n%d" playOrder="%d"><navLabel><text>%s</text></navLabel><content src="%s"/></navPoint>`+"\n",
				i, i+1, ch.title, ch.file)
		}
		write("OEBPS/"+ch.file, `<?xml version="1.0" encoding="utf-8"?>
<html xmlns="http://www.w3.org/1999/xhtml"><head><title>`+ch.file+`</title></head>
<body>`+ch.body+`</body></html>`, zip.Deflate)
	}

	write("OEBPS/content.opf", `<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="2.0" unique-identifier="bookid">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>`+title+`</dc:title>
    <dc:creator>Test Author</dc:creator>
    <dc:language>zh-TW</dc:language>
  </metadata>
  <manifest>
    <item id="ncx" href="toc.ncx" media-type="application/x-dtbncx+xml"/>
`+manifest.String()+`  </manifest>
  <spine toc="ncx">
`+spine.String()+`  </spine>
</package>`, zip.Deflate)

	write("OEBPS/toc.ncx", `<?xml version="1.0" encoding="UTF-8"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
  <navMap>
`+nav.String()+`  </navMap>
</ncx>`, zip.Deflate)

	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

// buildHaodoo assembles a Palm database in the Haodoo layout. creator is
// MTIT for Big5 books and MTIU for UTF-16LE books.
func buildHaodoo(t *testing.T, creator, title string, titles, chapters []string) []byte {
	t.Helper()
	var enc encoding.Encoding = traditionalchinese.Big5
	if creator == haodooUnicode {
		enc = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
	}
	encode := func(s string) []byte {
		b, err := enc.NewEncoder().Bytes([]byte(s))
		if err != nil {
			t.Fatalf("encode %q: %v", s, err)
		}
		return b
	}

	header := title + haodooEscape + haodooEscape + fmt.Sprint(len(titles)) + haodooEscape + strings.Join(titles, haodooEscape)
	records := [][]byte{append([]byte("        "), encode(header)...)}
	for _, ch := range chapters {
		records = append(records, encode(ch))
	}

	var buf bytes.Buffer
	name := make([]byte, 32)
	copy(name, "test")
	buf.Write(name)
	buf.Write(make([]byte, pdbTypeOffset-32))
	buf.WriteString(haodooBookType)
	buf.WriteString(creator)
	buf.Write(make([]byte, pdbRecordsAt-pdbTypeOffset-8))
	binary.Write(&buf, binary.BigEndian, uint16(len(records)))

	offset := pdbHeaderSize + len(records)*pdbRecordEntry
	for i, r := range records {
		binary.Write(&buf, binary.BigEndian, uint32(offset))
		binary.Write(&buf, binary.BigEndian, uint32(i))
		offset += len(r)
	}
	for _, r := range records {
		buf.Write(r)
	}
	return buf.Bytes()
}
