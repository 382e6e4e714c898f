package stormrisk

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/jlaffaye/ftp"
)

var detailsFile = regexp.MustCompile(`^StormEvents_details-ftp_v1\.0_d(\d{4})_c(\d{8})\.csv\.gz$`)

// Fetcher downloads yearly StormEvents details files from the NCEI FTP
// mirror.
type Fetcher struct {
	host string
	dir  string
}

func NewFetcher(host, dir string) *Fetcher {
	return &Fetcher{host: host, dir: dir}
}

// LatestDetailFiles picks the most recently compiled details file for each
// requested year. An empty years list selects every year present.
func LatestDetailFiles(names []string, years []int) map[int]string {
	want := make(map[int]bool, len(years))
	for _, y := range years {
		want[y] = true
	}
	latest := make(map[int]string)
	created := make(map[int]string)
	for _, name := range names {
		m := detailsFile.FindStringSubmatch(path.Base(name))
		if m == nil {
			continue
		}
		year, _ := strconv.Atoi(m[1])
		if len(want) > 0 && !want[year] {
			continue
		}
		if m[2] > created[year] {
			created[year] = m[2]
			latest[year] = path.Base(name)
		}
	}
	return latest
}

// Fetch downloads the details files for years into destDir and returns the
// local paths in year order. Files already present are skipped.
func (f *Fetcher) Fetch(ctx context.Context, destDir string, years []int) ([]string, error) {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, fmt.Errorf("create storm dir: %w", err)
	}

	conn, err := ftp.Dial(f.host, ftp.DialWithTimeout(30*time.Second), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("ftp dial: %w", err)
	}
	defer conn.Quit()

	if err := conn.Login("anonymous", "anonymous"); err != nil {
		return nil, fmt.Errorf("ftp login: %w", err)
	}

	names, err := conn.NameList(f.dir)
	if err != nil {
		return nil, fmt.Errorf("ftp list %s: %w", f.dir, err)
	}
	latest := LatestDetailFiles(names, years)
	for _, y := range years {
		if _, ok := latest[y]; !ok {
			log.Printf("stormrisk: no details file for %d on %s", y, f.host)
		}
	}

	ordered := make([]int, 0, len(latest))
	for y := range latest {
		ordered = append(ordered, y)
	}
	sort.Ints(ordered)

	var paths []string
	for _, y := range ordered {
		if err := ctx.Err(); err != nil {
			return paths, err
		}
		name := latest[y]
		dest := filepath.Join(destDir, name)
		if _, err := os.Stat(dest); err == nil {
			paths = append(paths, dest)
			continue
		}
		if err := retrieve(conn, path.Join(f.dir, name), dest); err != nil {
			return paths, err
		}
		log.Printf("stormrisk: downloaded %s", name)
		paths = append(paths, dest)
	}
	return paths, nil
}

func retrieve(conn *ftp.ServerConn, remote, dest string) error {
	resp, err := conn.Retr(remote)
	if err != nil {
		return fmt.Errorf("ftp retr %s: %w", remote, err)
	}
	defer resp.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp); err != nil {
		tmp.Close()
		return fmt.Errorf("download %s: %w", remote, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}
