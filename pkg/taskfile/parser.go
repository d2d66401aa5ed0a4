package taskfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// Regex patterns for parsing.
	frontmatterDelimiter = regexp.MustCompile(`^---\s*$`)
	titlePattern         = regexp.MustCompile(`^#\s+(?:Task:\s*)?(.+?)\s*$`)
)

// Parse parses a markdown task document into a TaskFile. Frontmatter is
// optional: a document without a leading --- block is all body.
func Parse(markdown string) (*TaskFile, error) {
	task := &TaskFile{
		RawMarkdown: markdown,
	}

	frontmatter, body, err := splitFrontmatter(markdown)
	if err != nil {
		return nil, fmt.Errorf("failed to split frontmatter: %w", err)
	}

	if frontmatter != "" {
		decoder := yaml.NewDecoder(strings.NewReader(frontmatter))
		decoder.KnownFields(true)
		if err := decoder.Decode(task); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse YAML frontmatter: %w", err)
		}
	}

	task.Prompt = strings.TrimSpace(body)

	// Fall back to the first heading when the frontmatter carries no
	// title.
	if task.Title == "" {
		task.Title = findTitle(body)
	}

	return task, nil
}

// splitFrontmatter splits markdown into YAML frontmatter and body. A
// document that does not open with --- has no frontmatter; one that
// opens a block without closing it is malformed.
//
//nolint:gocritic // Separate return values are clearer than a struct for this simple case.
func splitFrontmatter(markdown string) (frontmatter string, body string, err error) {
	lines := strings.Split(markdown, "\n")
	if len(lines) == 0 || !frontmatterDelimiter.MatchString(strings.TrimSpace(lines[0])) {
		return "", markdown, nil
	}

	for i := 1; i < len(lines); i++ {
		if frontmatterDelimiter.MatchString(strings.TrimSpace(lines[i])) {
			return strings.Join(lines[1:i], "\n"), strings.Join(lines[i+1:], "\n"), nil
		}
	}

	return "", "", fmt.Errorf("missing frontmatter closing delimiter (---)")
}

// findTitle returns the text of the first level-one heading, with an
// optional "Task:" prefix stripped.
func findTitle(body string) string {
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		if matches := titlePattern.FindStringSubmatch(scanner.Text()); matches != nil {
			return strings.TrimSpace(matches[1])
		}
	}
	return ""
}
