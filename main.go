// Copyright 2025 CloudWeGo Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/cloudwego/cellrepl/cell"
	"github.com/cloudwego/cellrepl/internal/log"
	"github.com/cloudwego/cellrepl/repl"
	"github.com/cloudwego/cellrepl/version"
)

const Usage = `cellrepl <Action> [Flags]
Action:
   run          start an interactive session on stdin
   version      print the kernel version
`

// StringArray lets a flag be passed multiple times.
type StringArray []string

func (s *StringArray) String() string { return strings.Join(*s, ",") }

func (s *StringArray) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func main() {
	flags := flag.NewFlagSet("cellrepl", flag.ExitOnError)

	flagHelp := flags.Bool("h", false, "Show help message.")
	flagVerbose := flags.Bool("verbose", false, "Verbose mode.")
	flagLibs := flags.String("libs", "", "Directory of library descriptors (*.yaml), watched for changes.")
	flagCache := flags.String("cache", "", "Artifact cache directory.")
	var repos StringArray
	flags.Var(&repos, "repo", "Artifact repository (dir or URL), support multiple values.")
	var classpath StringArray
	flags.Var(&classpath, "cp", "Initial classpath entry, support multiple values.")

	flags.Usage = func() {
		fmt.Fprint(os.Stderr, Usage)
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flags.PrintDefaults()
	}

	if len(os.Args) < 2 {
		flags.Usage()
		os.Exit(1)
	}
	action := strings.ToLower(os.Args[1])

	switch action {
	case "version":
		fmt.Fprintf(os.Stdout, "%s\n", version.Version)

	case "run":
		_ = flags.Parse(os.Args[2:])
		if *flagHelp {
			flags.Usage()
			return
		}
		if *flagVerbose {
			log.SetLogLevel(log.DebugLevel)
		}
		if err := runSession(repl.Options{
			Classpath:    classpath,
			Repositories: repos,
			LibraryDir:   *flagLibs,
			CacheDir:     *flagCache,
		}); err != nil {
			fmt.Fprintf(os.Stderr, "cellrepl: %v\n", err)
			os.Exit(1)
		}

	default:
		flags.Usage()
		os.Exit(1)
	}
}

func runSession(opts repl.Options) error {
	k, err := repl.New(opts)
	if err != nil {
		return err
	}
	defer k.Close()

	ctx := context.Background()
	in := bufio.NewScanner(os.Stdin)
	n := 0
	var pending strings.Builder

	prompt := func() {
		if pending.Len() > 0 {
			fmt.Print("... ")
		} else {
			fmt.Printf("[%d] ", n+1)
		}
	}

	prompt()
	for in.Scan() {
		line := in.Text()
		if pending.Len() > 0 {
			pending.WriteByte('\n')
		}
		pending.WriteString(line)
		src := pending.String()
		if strings.TrimSpace(src) == "" {
			pending.Reset()
			prompt()
			continue
		}

		chk, err := k.Check(ctx, n+1, src)
		if err == nil && !chk.Complete {
			// Valid prefix of a larger statement: keep accumulating under
			// the same execution number.
			prompt()
			continue
		}

		n++
		pending.Reset()
		res, err := k.Eval(ctx, n, src)
		switch {
		case err == nil:
			if !res.IsUnit {
				fmt.Println(k.Render(res.Value))
			}
		default:
			var rerr *cell.RuntimeError
			if errors.As(err, &rerr) {
				fmt.Println(k.RenderThrowable(rerr))
			} else {
				fmt.Println(err.Error())
			}
			var hm *cell.HistoryMismatch
			if errors.As(err, &hm) {
				return err
			}
		}
		prompt()
	}
	fmt.Println()
	return in.Err()
}
