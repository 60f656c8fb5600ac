// Package proc reads worker process information from /proc.
package proc

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// clock ticks per second; 100 on every Linux we run on
const clkTck = 100

type stat struct {
	state     byte
	pgrp      int
	utime     uint64
	stime     uint64
	threads   int
	startTime uint64
	rss       int64
}

func readStat(pid int) (*stat, error) {
	b, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		return nil, errors.Wrap(err, "read stat file")
	}
	// comm may contain spaces and parens; fields start after the last ')'
	s := string(b)
	i := strings.LastIndexByte(s, ')')
	if i < 0 {
		return nil, errors.New("malformed stat file")
	}
	f := strings.Fields(s[i+1:])
	if len(f) < 22 || len(f[0]) == 0 {
		return nil, errors.Errorf("malformed stat file: %d fields", len(f))
	}

	st := &stat{state: f[0][0]}
	if st.pgrp, err = strconv.Atoi(f[2]); err != nil {
		return nil, errors.Wrap(err, "parse pgrp")
	}
	if st.utime, err = strconv.ParseUint(f[11], 10, 64); err != nil {
		return nil, errors.Wrap(err, "parse utime")
	}
	if st.stime, err = strconv.ParseUint(f[12], 10, 64); err != nil {
		return nil, errors.Wrap(err, "parse stime")
	}
	if st.threads, err = strconv.Atoi(f[17]); err != nil {
		return nil, errors.Wrap(err, "parse num_threads")
	}
	if st.startTime, err = strconv.ParseUint(f[19], 10, 64); err != nil {
		return nil, errors.Wrap(err, "parse starttime")
	}
	if st.rss, err = strconv.ParseInt(f[21], 10, 64); err != nil {
		return nil, errors.Wrap(err, "parse rss")
	}
	return st, nil
}

func bootTime() (time.Time, error) {
	f, err := os.Open("/proc/stat")
	if err != nil {
		return time.Time{}, errors.Wrap(err, "open /proc/stat")
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		parts := strings.Fields(sc.Text())
		if len(parts) >= 2 && parts[0] == "btime" {
			v, err := strconv.ParseInt(parts[1], 10, 64)
			if err != nil {
				return time.Time{}, errors.Wrap(err, "parse btime")
			}
			return time.Unix(v, 0), nil
		}
	}
	return time.Time{}, errors.New("btime not found in /proc/stat")
}

// StartTime returns when pid started.
func StartTime(pid int) (time.Time, error) {
	st, err := readStat(pid)
	if err != nil {
		return time.Time{}, err
	}
	boot, err := bootTime()
	if err != nil {
		return time.Time{}, err
	}
	return boot.Add(time.Duration(st.startTime) * time.Second / clkTck), nil
}
