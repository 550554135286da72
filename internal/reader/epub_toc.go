package reader

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/taylorskalyo/goreader/epub"
	"golang.org/x/net/html"
)

// NCX XML structures for parsing toc.ncx
type ncx struct {
	NavMap navMap `xml:"navMap"`
}

type navMap struct {
	NavPoints []navPoint `xml:"navPoint"`
}

type navPoint struct {
	ID        string     `xml:"id,attr"`
	PlayOrder int        `xml:"playOrder,attr"`
	Label     navLabel   `xml:"navLabel"`
	Content   navContent `xml:"content"`
	Children  []navPoint `xml:"navPoint"`
}

type navLabel struct {
	Text string `xml:"text"`
}

type navContent struct {
	Src string `xml:"src,attr"`
}

// buildTOCHrefMap returns a map of href to title from the NCX, falling back
// to an EPUB 3 navigation document. The first title seen for an href wins.
func buildTOCHrefMap(zr *zip.Reader, pkg *epub.Rootfile) map[string]string {
	result := make(map[string]string)
	add := func(href, title string) {
		title = strings.TrimSpace(title)
		if href == "" || title == "" {
			return
		}
		if _, exists := result[href]; !exists {
			result[href] = title
		}
		if idx := strings.Index(href, "#"); idx != -1 {
			href = href[:idx]
			if _, exists := result[href]; !exists {
				result[href] = title
			}
		}
		base := path.Base(href)
		if _, exists := result[base]; !exists {
			result[base] = title
		}
	}

	if ncxData, err := findAndReadNCX(zr, pkg); err == nil {
		var toc ncx
		if err := xml.Unmarshal(ncxData, &toc); err == nil {
			var extract func(points []navPoint)
			extract = func(points []navPoint) {
				for _, np := range points {
					add(np.Content.Src, np.Label.Text)
					extract(np.Children)
				}
			}
			extract(toc.NavMap.NavPoints)
		}
	}
	if len(result) > 0 {
		return result
	}

	if navData, err := findAndReadNav(zr, pkg); err == nil {
		if doc, err := html.Parse(strings.NewReader(string(navData))); err == nil {
			if nav := findElement(doc, "nav"); nav != nil {
				var walk func(*html.Node)
				walk = func(n *html.Node) {
					if n.Type == html.ElementNode && n.Data == "a" {
						for _, a := range n.Attr {
							if a.Key == "href" {
								add(a.Val, textContent(n))
							}
						}
					}
					for c := n.FirstChild; c != nil; c = c.NextSibling {
						walk(c)
					}
				}
				walk(nav)
			}
		}
	}
	return result
}

func findAndReadNCX(zr *zip.Reader, pkg *epub.Rootfile) ([]byte, error) {
	var ncxPath string
	for _, item := range pkg.Manifest.Items {
		if item.MediaType == "application/x-dtbncx+xml" {
			ncxPath = item.HREF
			break
		}
	}
	if ncxPath == "" {
		for _, f := range zr.File {
			if strings.HasSuffix(strings.ToLower(f.Name), ".ncx") {
				ncxPath = f.Name
				break
			}
		}
	}
	if ncxPath == "" {
		return nil, fmt.Errorf("no NCX file found in EPUB")
	}
	return readArchiveFile(zr, pkg.FullPath, ncxPath)
}

// findAndReadNav locates an EPUB 3 navigation document by name; the
// manifest "properties" attribute is not exposed by the epub package.
func findAndReadNav(zr *zip.Reader, pkg *epub.Rootfile) ([]byte, error) {
	for _, item := range pkg.Manifest.Items {
		base := strings.ToLower(path.Base(item.HREF))
		if strings.Contains(item.MediaType, "html") && strings.HasPrefix(base, "nav") {
			return readArchiveFile(zr, pkg.FullPath, item.HREF)
		}
	}
	return nil, fmt.Errorf("no navigation document found in EPUB")
}

// readArchiveFile reads a manifest href, which is relative to the package
// document at opf. Archives with broken paths are matched by suffix and
// then by base name.
func readArchiveFile(zr *zip.Reader, opf, href string) ([]byte, error) {
	href = strings.TrimPrefix(href, "/")
	if i := strings.Index(href, "#"); i != -1 {
		href = href[:i]
	}
	resolved := path.Join(path.Dir(opf), href)
	match := []func(string) bool{
		func(name string) bool { return name == resolved },
		func(name string) bool { return name == href },
		func(name string) bool { return strings.HasSuffix(name, "/"+href) },
		func(name string) bool { return path.Base(name) == path.Base(href) },
	}
	for _, m := range match {
		for _, f := range zr.File {
			if !m(f.Name) {
				continue
			}
			rc, err := f.Open()
			if err != nil {
				return nil, err
			}
			defer rc.Close()
			return io.ReadAll(rc)
		}
	}
	return nil, fmt.Errorf("%s not found in archive", href)
}
