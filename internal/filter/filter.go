package filter

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Rule pairs a compiled pattern with its include/exclude polarity.
type Rule struct {
	Pattern *pattern
	Include bool
}

// Chain is an ordered rule list plus optional size bounds. Rule order is
// the order of Add calls, which mirrors command-line order.
type Chain struct {
	rules   []Rule
	minSize int64
	maxSize int64
}

// NewChain creates an empty filter chain.
func NewChain() *Chain {
	return &Chain{}
}

// AddExclude adds an exclude rule matching files and directories.
func (c *Chain) AddExclude(glob string) error {
	return c.add(glob, false, scopeAny)
}

// AddInclude adds an include rule for the given pattern.
func (c *Chain) AddInclude(glob string) error {
	return c.add(glob, true, scopeAny)
}

// AddExcludeFile adds an exclude rule that matches non-directories only,
// by basename or relative path (robocopy /XF).
func (c *Chain) AddExcludeFile(glob string) error {
	return c.add(glob, false, scopeFile)
}

// AddExcludeDir adds an exclude rule that matches directories only
// (robocopy /XD). Scanners prune matched directories, so everything
// beneath them is excluded as well.
func (c *Chain) AddExcludeDir(glob string) error {
	return c.add(glob, false, scopeDir)
}

func (c *Chain) add(glob string, include bool, sc scope) error {
	p, err := compile(glob, sc)
	if err != nil {
		return err
	}
	c.rules = append(c.rules, Rule{Pattern: p, Include: include})
	return nil
}

// SetMinSize drops files smaller than n bytes. Zero disables the bound.
func (c *Chain) SetMinSize(n int64) {
	c.minSize = n
}

// SetMaxSize drops files larger than n bytes. Zero disables the bound.
func (c *Chain) SetMaxSize(n int64) {
	c.maxSize = n
}

// Empty reports whether the chain has no rules and no size bounds.
func (c *Chain) Empty() bool {
	return len(c.rules) == 0 && c.minSize == 0 && c.maxSize == 0
}

// Match reports whether relPath should be synced. The first rule that hits
// decides; a path no rule matches is kept. Size bounds apply to regular
// files only, never to directories.
func (c *Chain) Match(relPath string, isDir bool, size int64) bool {
	if !isDir && !c.sizeOK(size) {
		return false
	}
	for _, rule := range c.rules {
		if rule.Pattern.match(relPath, isDir) {
			return rule.Include
		}
	}
	return true
}

func (c *Chain) sizeOK(size int64) bool {
	if c.minSize > 0 && size < c.minSize {
		return false
	}
	if c.maxSize > 0 && size > c.maxSize {
		return false
	}
	return true
}

// LoadRules reads filter rules from a file and appends them to the chain.
// Format:
//   - pattern  → exclude
//   + pattern  → include
//   # comment  → skip
//   blank line → skip
//   no prefix  → exclude (rsync default)
func (c *Chain) LoadRules(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open filter file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip blank lines and comments.
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		include := false
		glob := line

		if strings.HasPrefix(line, "+ ") {
			include = true
			glob = strings.TrimSpace(line[2:])
		} else if strings.HasPrefix(line, "- ") {
			include = false
			glob = strings.TrimSpace(line[2:])
		}
		// else: no prefix, treat as exclude.

		if err := c.add(glob, include, scopeAny); err != nil {
			return fmt.Errorf("filter file %s line %d: %w", path, lineNum, err)
		}
	}

	return scanner.Err()
}
