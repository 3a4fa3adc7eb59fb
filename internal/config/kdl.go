package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"
)

// FileName is the per-directory configuration file.
const FileName = ".csearch.kdl"

// Load reads .csearch.kdl from dir, layered over the defaults. A missing
// file is not an error; a malformed one is.
func Load(dir string) (*Config, error) {
	cfg := Default()

	path := filepath.Join(dir, FileName)
	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if err := parseKDL(string(content), cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func parseKDL(content string, cfg *Config) error {
	doc, err := kdl.Parse(strings.NewReader(content))
	if err != nil {
		return err
	}

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "pool":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "capacity":
					if v, ok := firstIntArg(cn); ok {
						cfg.Pool.Capacity = v
					}
				case "acquire_timeout_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.Pool.AcquireTimeout = time.Duration(v) * time.Millisecond
					}
				case "idle_timeout_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.Pool.IdleTimeout = time.Duration(v) * time.Millisecond
					}
				case "sweep_interval_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.Pool.SweepInterval = time.Duration(v) * time.Millisecond
					}
				}
			}
		case "index":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "max_file_size":
					if v, ok := firstIntArg(cn); ok {
						cfg.Index.MaxFileSize = int64(v)
					} else if s, ok := firstStringArg(cn); ok {
						if sz, err := parseSize(s); err == nil {
							cfg.Index.MaxFileSize = sz
						}
					}
				case "include":
					cfg.Index.Include = collectStringArgs(cn)
				case "exclude":
					cfg.Index.Exclude = collectStringArgs(cn)
				case "watch_mode":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Index.WatchMode = b
					}
				case "watch_debounce_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.Index.WatchDebounceMs = v
					}
				}
			}
		case "budget":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "max_tokens":
					if v, ok := firstIntArg(cn); ok {
						cfg.Budget.MaxTokens = v
					}
				case "mode":
					if s, ok := firstStringArg(cn); ok {
						cfg.Budget.Mode = s
					}
				}
			}
		case "cache":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "capacity":
					if v, ok := firstIntArg(cn); ok {
						cfg.Cache.Capacity = v
					}
				case "ttl_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.Cache.TTL = time.Duration(v) * time.Millisecond
					}
				}
			}
		case "resources":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "backend":
					if s, ok := firstStringArg(cn); ok {
						cfg.Resources.Backend = s
					}
				case "dir":
					if s, ok := firstStringArg(cn); ok {
						cfg.Resources.Dir = s
					}
				case "ttl_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.Resources.TTL = time.Duration(v) * time.Millisecond
					}
				case "purge_interval_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.Resources.PurgeInterval = time.Duration(v) * time.Millisecond
					}
				case "preserve_overflow":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Resources.PreserveOverflow = b
					}
				}
			}
		}
	}
	return nil
}

func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	if s, ok := n.Arguments[0].Value.(string); ok {
		return s, true
	}
	return "", false
}

func firstBoolArg(n *document.Node) (bool, bool) {
	if len(n.Arguments) == 0 {
		return false, false
	}
	if b, ok := n.Arguments[0].Value.(bool); ok {
		return b, true
	}
	return false, false
}

// collectStringArgs accepts both inline and block form:
//
//	exclude "**/dist/**" "**/tmp/**"
//	exclude { "**/dist/**"; "**/tmp/**" }
func collectStringArgs(n *document.Node) []string {
	if n == nil {
		return nil
	}
	out := make([]string, 0, len(n.Arguments))
	for _, a := range n.Arguments {
		if s, ok := a.Value.(string); ok {
			out = append(out, s)
		}
	}
	if len(out) == 0 && len(n.Children) > 0 {
		for _, child := range n.Children {
			if s, ok := firstStringArg(child); ok {
				out = append(out, s)
			} else if child.Name != nil {
				if s, ok := child.Name.Value.(string); ok {
					out = append(out, s)
				}
			}
		}
	}
	return out
}

// parseSize handles size strings like "2MB", "500KB", "1GB".
func parseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))

	var multiplier int64 = 1
	numStr := s
	switch {
	case strings.HasSuffix(s, "GB"):
		multiplier = 1024 * 1024 * 1024
		numStr = strings.TrimSuffix(s, "GB")
	case strings.HasSuffix(s, "MB"):
		multiplier = 1024 * 1024
		numStr = strings.TrimSuffix(s, "MB")
	case strings.HasSuffix(s, "KB"):
		multiplier = 1024
		numStr = strings.TrimSuffix(s, "KB")
	case strings.HasSuffix(s, "B"):
		numStr = strings.TrimSuffix(s, "B")
	}

	num, err := strconv.ParseInt(numStr, 10, 64)
	if err != nil {
		return 0, err
	}
	return num * multiplier, nil
}
