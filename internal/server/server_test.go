package server

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/inkdot-dev/inkpress/pkg/layout"
	"github.com/inkdot-dev/inkpress/pkg/pipeline"
	"github.com/inkdot-dev/inkpress/pkg/xtc"
)

const containerXML = `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

const contentOPF = `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" version="2.0" unique-identifier="uid">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>Served Book</dc:title>
    <dc:creator>A. Writer</dc:creator>
    <dc:language>en</dc:language>
  </metadata>
  <manifest>
    <item id="ncx" href="toc.ncx" media-type="application/x-dtbncx+xml"/>
    <item id="ch1" href="ch1.xhtml" media-type="application/xhtml+xml"/>
    <item id="ch2" href="ch2.xhtml" media-type="application/xhtml+xml"/>
  </manifest>
  <spine toc="ncx">
    <itemref idref="ch1"/>
    <itemref idref="ch2"/>
  </spine>
</package>`

const tocNCX = `<?xml version="1.0"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
  <navMap>
    <navPoint id="n1" playOrder="1">
      <navLabel><text>Chapter One</text></navLabel>
      <content src="ch1.xhtml"/>
    </navPoint>
    <navPoint id="n2" playOrder="2">
      <navLabel><text>Chapter Two</text></navLabel>
      <content src="ch2.xhtml"/>
    </navPoint>
  </navMap>
</ncx>`

func chapterXHTML(title string) string {
	return fmt.Sprintf(`<?xml version="1.0"?>
<html xmlns="http://www.w3.org/1999/xhtml"><body>
  <h1>%s</h1>
  <p>%s</p>
</body></html>`, title, strings.Repeat("Prose for the preview server to typeset. ", 10))
}

func testEPUB(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	files := map[string]string{
		"mimetype":               "application/epub+zip",
		"META-INF/container.xml": containerXML,
		"OEBPS/content.opf":      contentOPF,
		"OEBPS/toc.ncx":          tocNCX,
		"OEBPS/ch1.xhtml":        chapterXHTML("Chapter One"),
		"OEBPS/ch2.xhtml":        chapterXHTML("Chapter Two"),
	}
	for name, data := range files {
		f, err := w.Create(name)
		if err != nil {
			t.Fatalf("zip create %q: %v", name, err)
		}
		if _, err := f.Write([]byte(data)); err != nil {
			t.Fatalf("zip write %q: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := layout.Default()
	cfg.PageWidth = 240
	cfg.PageHeight = 320
	cfg.FontSize = 14
	cfg.RenderScale = 1

	runner := pipeline.NewRunner(nil, nil, nil)
	t.Cleanup(func() { runner.Close() })

	ts := httptest.NewServer(New(runner, runner.Logger, cfg).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func upload(t *testing.T, ts *httptest.Server) bookInfo {
	t.Helper()
	resp, err := http.Post(ts.URL+"/books", "application/epub+zip", bytes.NewReader(testEPUB(t)))
	if err != nil {
		t.Fatalf("POST /books: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("POST /books = %d: %s", resp.StatusCode, body)
	}
	var info bookInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	return info
}

func TestUploadAndInfo(t *testing.T) {
	ts := testServer(t)
	info := upload(t, ts)

	if info.ID == "" {
		t.Fatal("upload returned no id")
	}
	if info.Title != "Served Book" {
		t.Errorf("title = %q", info.Title)
	}
	if info.Pages == 0 {
		t.Error("no pages reported")
	}
	if len(info.Chapters) != 2 {
		t.Fatalf("chapters = %d, want 2", len(info.Chapters))
	}
	for _, ch := range info.Chapters {
		if !ch.Visible {
			t.Errorf("chapter %q hidden after upload", ch.ID)
		}
	}

	resp, err := http.Get(ts.URL + "/books/" + info.ID)
	if err != nil {
		t.Fatalf("GET info: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET info = %d", resp.StatusCode)
	}
}

func TestPagePNG(t *testing.T) {
	ts := testServer(t)
	info := upload(t, ts)

	resp, err := http.Get(fmt.Sprintf("%s/books/%s/pages/0.png", ts.URL, info.ID))
	if err != nil {
		t.Fatalf("GET page: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET page = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("content type = %q", ct)
	}
	img, err := png.Decode(resp.Body)
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	if img.Bounds().Dx() != 240 || img.Bounds().Dy() != 320 {
		t.Errorf("page is %v, want 240x320", img.Bounds())
	}

	out, err := http.Get(fmt.Sprintf("%s/books/%s/pages/%d.png", ts.URL, info.ID, info.Pages))
	if err != nil {
		t.Fatalf("GET out-of-range page: %v", err)
	}
	defer out.Body.Close()
	if out.StatusCode != http.StatusNotFound {
		t.Errorf("out-of-range page = %d, want 404", out.StatusCode)
	}
}

func TestContainerDownload(t *testing.T) {
	ts := testServer(t)
	info := upload(t, ts)

	resp, err := http.Get(ts.URL + "/books/" + info.ID + "/container")
	if err != nil {
		t.Fatalf("GET container: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET container = %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read container: %v", err)
	}
	c, err := xtc.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(c.Pages) != info.Pages {
		t.Errorf("container has %d pages, want %d", len(c.Pages), info.Pages)
	}
}

func TestChapterToggle(t *testing.T) {
	ts := testServer(t)
	info := upload(t, ts)
	target := info.Chapters[1].ID

	body := bytes.NewReader([]byte(`{"visible": false}`))
	req, err := http.NewRequest(http.MethodPatch, ts.URL+"/books/"+info.ID+"/chapters/"+target, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PATCH chapter: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("PATCH chapter = %d: %s", resp.StatusCode, raw)
	}
	var updated bookInfo
	if err := json.NewDecoder(resp.Body).Decode(&updated); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if updated.Pages != info.Pages {
		t.Errorf("page count changed from %d to %d after hiding", info.Pages, updated.Pages)
	}
	for _, ch := range updated.Chapters {
		if ch.ID == target && ch.Visible {
			t.Error("chapter still visible after PATCH")
		}
	}

	dl, err := http.Get(ts.URL + "/books/" + info.ID + "/container")
	if err != nil {
		t.Fatalf("GET container: %v", err)
	}
	defer dl.Body.Close()
	data, _ := io.ReadAll(dl.Body)
	c, err := xtc.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	for _, e := range c.TOC {
		if e.ChapterID == target {
			t.Error("hidden chapter listed in container TOC")
		}
	}
}

func TestUnknownBook(t *testing.T) {
	ts := testServer(t)

	resp, err := http.Get(ts.URL + "/books/not-a-book")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown book = %d, want 404", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body["code"] != "NOT_FOUND" {
		t.Errorf("error code = %q", body["code"])
	}
}

func TestDeleteBook(t *testing.T) {
	ts := testServer(t)
	info := upload(t, ts)

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/books/"+info.ID, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("DELETE = %d, want 204", resp.StatusCode)
	}

	gone, err := http.Get(ts.URL + "/books/" + info.ID)
	if err != nil {
		t.Fatalf("GET after delete: %v", err)
	}
	gone.Body.Close()
	if gone.StatusCode != http.StatusNotFound {
		t.Errorf("GET after delete = %d, want 404", gone.StatusCode)
	}
}
