package contextsource

import (
	"context"
	"fmt"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	readability "github.com/go-shiori/go-readability"

	"github.com/flowmind-ai/pipeline/promptcontext"
)

// WebSource names one page to scrape into a context section, plus the
// static tagging metadata the scraped page doesn't carry on its own.
type WebSource struct {
	URL      string
	Topics   []string
	Priority int
}

// WebLoader builds a section catalog by fetching and readability-extracting
// a fixed list of pages, converting the extracted article HTML to
// markdown.
type WebLoader struct {
	sources   []WebSource
	timeout   time.Duration
	converter *md.Converter
}

// NewWebLoader builds a loader over a fixed source list.
func NewWebLoader(sources []WebSource, timeout time.Duration) *WebLoader {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())
	return &WebLoader{sources: sources, timeout: timeout, converter: converter}
}

func (l *WebLoader) Load(ctx context.Context, req promptcontext.LoadRequest) ([]promptcontext.Section, error) {
	sections := make([]promptcontext.Section, 0, len(l.sources))
	for i, src := range l.sources {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		article, err := readability.FromURL(src.URL, l.timeout)
		if err != nil {
			return nil, fmt.Errorf("contextsource: fetch %q: %w", src.URL, err)
		}

		markdown, err := l.converter.ConvertString(article.Content)
		if err != nil {
			return nil, fmt.Errorf("contextsource: convert %q: %w", src.URL, err)
		}

		section := promptcontext.NewSection(fmt.Sprintf("web-%d", i), markdown, src.Topics, false, src.Priority)
		section.Name = article.Title
		sections = append(sections, section)
	}
	return sections, nil
}
