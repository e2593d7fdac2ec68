// Package catalog discovers session logs on disk, summarizes them for
// listings, and resolves user-supplied session references.
package catalog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/johns/chatlog/internal/replay"
	"github.com/johns/chatlog/internal/writer"
)

// Summary is one catalog entry, plain data for a CLI layer to format.
type Summary struct {
	SessionID    string
	FilePath     string
	LastModified time.Time
	SizeBytes    int64
	Provider     string
	Model        string
	TurnCount    int
}

// Catalog lists sessions under one project-scoped store directory.
type Catalog struct {
	Dir         string
	ProjectHash string // when non-empty, sessions of other projects are skipped
	Cache       *Cache // optional header cache
	Log         *logrus.Logger
}

func (c *Catalog) logger() *logrus.Logger {
	if c.Log != nil {
		return c.Log
	}
	return logrus.StandardLogger()
}

// List returns summaries newest-first by last-modified time, tie-broken by
// session id descending. A missing directory yields an empty list.
func (c *Catalog) List() ([]Summary, error) {
	entries, err := os.ReadDir(c.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan session directory: %w", err)
	}

	var summaries []Summary
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), writer.FileSuffix) {
			continue
		}
		path := filepath.Join(c.Dir, e.Name())
		info, err := e.Info()
		if err != nil {
			continue
		}

		summary, ok := c.summarize(path, info)
		if !ok {
			continue
		}
		if c.ProjectHash != "" && summary.projectHash != c.ProjectHash {
			continue
		}
		summaries = append(summaries, summary.Summary)
	}

	sort.Slice(summaries, func(i, j int) bool {
		if !summaries[i].LastModified.Equal(summaries[j].LastModified) {
			return summaries[i].LastModified.After(summaries[j].LastModified)
		}
		return summaries[i].SessionID > summaries[j].SessionID
	})
	return summaries, nil
}

type scannedSummary struct {
	Summary
	projectHash string
}

func (c *Catalog) summarize(path string, info os.FileInfo) (scannedSummary, bool) {
	if c.Cache != nil {
		if hit, ok := c.Cache.Lookup(path, info.ModTime().Unix(), info.Size()); ok {
			return scannedSummary{
				Summary: Summary{
					SessionID:    hit.SessionID,
					FilePath:     path,
					LastModified: info.ModTime(),
					SizeBytes:    info.Size(),
					Provider:     hit.Provider,
					Model:        hit.Model,
					TurnCount:    hit.TurnCount,
				},
				projectHash: hit.ProjectHash,
			}, true
		}
	}

	header, err := replay.ReadHeader(path)
	if err != nil || header == nil {
		c.logger().WithField("path", path).Warn("skipping session log without a readable header")
		return scannedSummary{}, false
	}
	turns, err := countTurns(path)
	if err != nil {
		c.logger().WithError(err).WithField("path", path).Warn("skipping unreadable session log")
		return scannedSummary{}, false
	}

	if c.Cache != nil {
		c.Cache.Store(CachedHeader{
			Path:        path,
			MtimeUnix:   info.ModTime().Unix(),
			SizeBytes:   info.Size(),
			SessionID:   header.SessionID,
			ProjectHash: header.ProjectHash,
			Provider:    header.Provider,
			Model:       header.Model,
			TurnCount:   turns,
		})
	}

	return scannedSummary{
		Summary: Summary{
			SessionID:    header.SessionID,
			FilePath:     path,
			LastModified: info.ModTime(),
			SizeBytes:    info.Size(),
			Provider:     header.Provider,
			Model:        header.Model,
			TurnCount:    turns,
		},
		projectHash: header.ProjectHash,
	}, true
}

// countTurns counts content records without decoding full payloads.
func countTurns(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 10*1024*1024)
	count := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var probe struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(line, &probe); err != nil {
			continue
		}
		if probe.Type == "content" {
			count++
		}
	}
	return count, scanner.Err()
}
