package cli

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/inkdot-dev/inkpress/pkg/layout"
	"github.com/inkdot-dev/inkpress/pkg/pipeline"
)

// previewCommand creates the interactive terminal preview.
func (c *CLI) previewCommand() *cobra.Command {
	opts := convertOpts{}

	cmd := &cobra.Command{
		Use:   "preview <book.epub>",
		Short: "Page through the rendered book in the terminal",
		Long: `Preview the converted book page by page, rendered as block art in the
terminal. Chapters can be hidden or shown on the fly; navigation and
progress update without re-laying out the book.

Keys:
  left/h, right/l   previous / next page
  g, G              first / last page
  c                 toggle the chapter panel
  enter             show/hide the selected chapter (in panel)
  e                 export the current page as PNG
  q                 quit`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, &opts)
			if err != nil {
				return err
			}
			return c.runPreview(cmd.Context(), args[0], cfg, &opts)
		},
	}

	cmd.Flags().StringVar(&opts.profile, "profile", "", "TOML typography profile")
	cmd.Flags().StringVar(&opts.fontPath, "font", "", "custom TTF font file")
	cmd.Flags().StringVar(&opts.language, "language", "", "hyphenation language (overrides book metadata)")
	cmd.Flags().BoolVar(&opts.noHyphen, "no-hyphenation", false, "disable soft hyphenation")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "disable caching")
	cmd.Flags().BoolVar(&opts.landscape, "landscape", false, "landscape orientation")

	return cmd
}

func (c *CLI) runPreview(ctx context.Context, input string, cfg layout.Config, opts *convertOpts) error {
	data, err := os.ReadFile(input)
	if err != nil {
		return fmt.Errorf("read epub: %w", err)
	}

	runner, err := c.newRunner(opts.noCache, "")
	if err != nil {
		return err
	}
	defer runner.Close()

	spin := newSpinner(ctx, "Laying out book")
	spin.Start()
	session, warns, err := pipeline.NewSession(ctx, runner, pipeline.Options{
		EPUB:               data,
		Source:             filepath.Base(input),
		Layout:             cfg,
		Language:           opts.language,
		DisableHyphenation: opts.noHyphen,
	})
	if err != nil {
		spin.StopWithError(fmt.Sprintf("Layout failed: %v", err))
		return err
	}
	spin.Stop()
	for _, w := range warns {
		printWarning("%v", w)
	}

	model := newPreviewModel(ctx, session, strings.TrimSuffix(filepath.Base(input), filepath.Ext(input)))
	_, err = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}

// =============================================================================
// PreviewModel - Bubbletea page viewer
// =============================================================================

var (
	previewPageStyle   = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).BorderForeground(colorDim)
	previewStatusStyle = lipgloss.NewStyle().Foreground(colorGray)
	chapterShownStyle  = lipgloss.NewStyle().Foreground(colorWhite)
	chapterHiddenStyle = lipgloss.NewStyle().Foreground(colorDim).Strikethrough(true)
	chapterCursorStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
)

// pageMsg delivers one rendered page to the model.
type pageMsg struct {
	page int
	img  *image.Gray
	err  error
}

// exportMsg reports the outcome of a PNG export.
type exportMsg struct {
	path string
	err  error
}

// previewModel is the bubbletea model for the terminal pager.
type previewModel struct {
	ctx     context.Context
	session *pipeline.Session
	name    string

	page   int
	img    *image.Gray
	width  int
	height int

	panel  bool // chapter panel open
	cursor int  // selected chapter in the panel

	status string
	err    error
}

func newPreviewModel(ctx context.Context, s *pipeline.Session, name string) previewModel {
	return previewModel{ctx: ctx, session: s, name: name, width: 80, height: 24}
}

func (m previewModel) Init() tea.Cmd {
	return m.loadPage(0)
}

// loadPage renders the given page off the UI goroutine.
func (m previewModel) loadPage(page int) tea.Cmd {
	return func() tea.Msg {
		img, _, err := m.session.RenderPage(m.ctx, page)
		return pageMsg{page: page, img: img, err: err}
	}
}

// exportPage writes the current page next to the working directory.
func (m previewModel) exportPage() tea.Cmd {
	img, page := m.img, m.page
	name := m.name
	return func() tea.Msg {
		if img == nil {
			return exportMsg{err: fmt.Errorf("page %d not rendered yet", page)}
		}
		path := fmt.Sprintf("%s_page%04d.png", name, page+1)
		f, err := os.Create(path)
		if err != nil {
			return exportMsg{err: err}
		}
		defer f.Close()
		if err := png.Encode(f, img); err != nil {
			return exportMsg{err: err}
		}
		return exportMsg{path: path}
	}
}

func (m previewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case pageMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.page = msg.page
		m.img = msg.img
		m.err = nil
	case exportMsg:
		if msg.err != nil {
			m.status = "export failed: " + msg.err.Error()
		} else {
			m.status = "exported " + msg.path
		}
	}
	return m, nil
}

func (m previewModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	total := m.session.PageCount()

	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case "right", "l", " ":
		if m.page < total-1 {
			return m, m.loadPage(m.page + 1)
		}
	case "left", "h":
		if m.page > 0 {
			return m, m.loadPage(m.page - 1)
		}
	case "g":
		return m, m.loadPage(0)
	case "G":
		return m, m.loadPage(total - 1)
	case "c":
		m.panel = !m.panel
	case "up", "k":
		if m.panel && m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.panel && m.cursor < len(m.session.Book().Chapters)-1 {
			m.cursor++
		}
	case "enter":
		if m.panel {
			return m.toggleChapter()
		}
	case "e":
		return m, m.exportPage()
	}
	return m, nil
}

// toggleChapter flips the selected chapter's visibility and re-renders the
// current page so the footer reflects the new navigation.
func (m previewModel) toggleChapter() (tea.Model, tea.Cmd) {
	chapters := m.session.Book().Chapters
	if m.cursor >= len(chapters) {
		return m, nil
	}
	ch := chapters[m.cursor]
	if err := m.session.SetChapterVisibility(ch.ID, !ch.Visible); err != nil {
		m.status = err.Error()
		return m, nil
	}
	return m, m.loadPage(m.page)
}

func (m previewModel) View() string {
	var b strings.Builder

	art := "rendering..."
	if m.err != nil {
		art = m.err.Error()
	} else if m.img != nil {
		cols := m.width - 4
		rows := m.height - 6
		if m.panel {
			cols -= 34
		}
		art = blockArt(m.img, cols, rows)
	}
	page := previewPageStyle.Render(art)

	if m.panel {
		page = lipgloss.JoinHorizontal(lipgloss.Top, page, "  ", m.chapterPanel())
	}
	b.WriteString(page)
	b.WriteString("\n")

	status := fmt.Sprintf("%s · page %d/%d", m.name, m.page+1, m.session.PageCount())
	if m.status != "" {
		status += " · " + m.status
	}
	b.WriteString(previewStatusStyle.Render(status))
	b.WriteString("\n")
	b.WriteString(StyleDim.Render("←/→ page  g/G first/last  c chapters  e export  q quit"))

	return b.String()
}

// chapterPanel renders the visibility toggle list.
func (m previewModel) chapterPanel() string {
	var b strings.Builder
	b.WriteString(StyleTitle.Render("Chapters"))
	b.WriteString("\n")
	for i, ch := range m.session.Book().Chapters {
		cursor := "  "
		if i == m.cursor {
			cursor = "▸ "
		}
		title := ch.Title
		if len(title) > 28 {
			title = title[:28]
		}
		style := chapterShownStyle
		if !ch.Visible {
			style = chapterHiddenStyle
		}
		line := cursor + style.Render(title)
		if i == m.cursor {
			line = chapterCursorStyle.Render(cursor) + style.Render(title)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

// blockArt downsamples a grayscale page into terminal block characters.
// Each cell averages the pixels it covers and maps to a five-step ramp,
// dark ink on light paper.
func blockArt(img *image.Gray, cols, rows int) string {
	ramp := []rune{'█', '▓', '▒', '░', ' '}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	// preserve the page aspect ratio; terminal cells are about twice as
	// tall as wide
	if w*rows*2 > h*cols {
		rows = h * cols / (w * 2)
	} else {
		cols = w * rows * 2 / h
	}
	if cols < 1 || rows < 1 {
		return ""
	}

	var b strings.Builder
	for row := 0; row < rows; row++ {
		y0 := bounds.Min.Y + row*h/rows
		y1 := bounds.Min.Y + (row+1)*h/rows
		for col := 0; col < cols; col++ {
			x0 := bounds.Min.X + col*w/cols
			x1 := bounds.Min.X + (col+1)*w/cols
			sum, n := 0, 0
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					sum += int(img.GrayAt(x, y).Y)
					n++
				}
			}
			shade := 255
			if n > 0 {
				shade = sum / n
			}
			b.WriteRune(ramp[shade*(len(ramp)-1)/255])
		}
		if row < rows-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}
