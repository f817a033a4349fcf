package signal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/betbot/skinscan/internal/domain"
)

const (
	filePrefix = "signals_"
	fileSuffix = ".jsonl"
)

// Journal 按自然日分文件的只追加信号日志，每行一个 JSON 对象
type Journal struct {
	dir string
	mu  sync.Mutex
}

// NewJournal 创建日志目录
func NewJournal(dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create signal dir %s", dir)
	}
	return &Journal{dir: dir}, nil
}

// Dir 日志目录
func (j *Journal) Dir() string { return j.dir }

// PathFor 某天的日志文件路径
func (j *Journal) PathFor(day string) string {
	return filepath.Join(j.dir, filePrefix+day+fileSuffix)
}

// Append 追加一条信号并 fsync，返回后记录已落盘
func (j *Journal) Append(s domain.Signal) error {
	line, err := json.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "marshal signal")
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.OpenFile(j.PathFor(s.Day()), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Wrap(err, "open signal journal")
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "append signal")
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "sync signal journal")
	}
	return f.Close()
}

// ReadDay 读取某天的全部信号；文件不存在时返回空
func (j *Journal) ReadDay(day string) ([]domain.Signal, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.Open(j.PathFor(day))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "open signal journal")
	}
	defer f.Close()

	var out []domain.Signal
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	n := 0
	for sc.Scan() {
		n++
		b := sc.Bytes()
		if len(strings.TrimSpace(string(b))) == 0 {
			continue
		}
		var s domain.Signal
		if err := json.Unmarshal(b, &s); err != nil {
			return out, fmt.Errorf("signal journal %s line %d: %w", day, n, err)
		}
		out = append(out, s)
	}
	return out, errors.Wrap(sc.Err(), "scan signal journal")
}

// Days 已有日志的日期，升序
func (j *Journal) Days() ([]string, error) {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		return nil, errors.Wrap(err, "list signal dir")
	}
	var days []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		days = append(days, strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix))
	}
	sort.Strings(days)
	return days, nil
}
