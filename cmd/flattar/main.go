package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/polydawn/refmt"
	"github.com/polydawn/refmt/json"
	. "github.com/warpfork/go-errcat"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/polydawn/flattar"
	"github.com/polydawn/flattar/config"
	"github.com/polydawn/flattar/sink/digest"
	"github.com/polydawn/flattar/sink/tarsink"
	"github.com/polydawn/flattar/sink/zipsink"
)

/*
	Output serialization formats
*/
const (
	FmtJson = "json"
	FmtDumb = "dumb"
)

type baseCLI struct {
	Format    string // Output api format, eg. json
	Verbose   bool   // Emit a trace of every decision
	CreateCLI struct {
		File  string   // Archive file to write ("-" or blank for stdout)
		Dir   string   // Directory relative paths are taken from
		Pack  string   // Archive format
		Items []string // "PATH[=ARCHIVEPATH]"
	}
}

func configureCreate(cli *baseCLI, appCreate *kingpin.CmdClause) {
	appCreate.Flag("file", "Archive file to write; '-' for stdout").
		Short('f').
		Default("-").
		StringVar(&cli.CreateCLI.File)
	appCreate.Flag("directory", "Directory relative paths are taken from").
		Short('C').
		Default(config.GetWorkDir().String()).
		StringVar(&cli.CreateCLI.Dir)
	appCreate.Flag("pack", "Archive format [tar, zip]").
		Default(tarsink.PackType).
		EnumVar(&cli.CreateCLI.Pack,
			tarsink.PackType, zipsink.PackType)
	appCreate.Arg("path", "Paths to archive, each optionally followed by '=' and the path to give it in the archive (split at the last '='; a path containing '=' needs an explicit archive path)").
		Required().
		StringsVar(&cli.CreateCLI.Items)
}

/*
	Blocks until a sigint is received, then calls cancel.
*/
func CancelOnInterrupt(cancel context.CancelFunc) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt)
	<-signalChan
	cancel()
	signal.Stop(signalChan)
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	go CancelOnInterrupt(cancel)
	exitCode := Main(ctx, os.Args, os.Stdin, os.Stdout, os.Stderr)
	os.Exit(int(exitCode))
}

func Main(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) flattar.ExitCode {
	cli := baseCLI{}

	app := kingpin.New("flattar", "Tar archives with every symlink replaced by what it points to")
	app.HelpFlag.Short('h')

	app.UsageWriter(stderr)
	app.ErrorWriter(stderr)

	app.Flag("format", "Output api format").
		Default(FmtDumb).
		EnumVar(&cli.Format, FmtJson, FmtDumb)
	app.Flag("verbose", "Trace every classification and entry to stderr").
		Short('v').
		Default(fmt.Sprintf("%v", config.GetVerbose())).
		BoolVar(&cli.Verbose)

	appCreate := app.Command("create", "write an archive of the given paths")
	configureCreate(&cli, appCreate)

	var terminated bool
	app.Terminate(func(status int) {
		terminated = true
	})
	cmd, err := app.Parse(args[1:])
	if err != nil {
		fmt.Fprintln(stderr, err)
		return flattar.ExitUsage
	}
	if terminated {
		// Help or version output was requested and has been printed.
		return flattar.ExitSuccess
	}
	switch cmd {
	case appCreate.FullCommand():
		digestStr, resultW, err := executeCreate(ctx, cli, stdout, stderr)
		SerializeResult(cli.Format, digestStr, err, resultW, stderr)
		return flattar.ExitCodeForError(err)
	default:
		panic(fmt.Errorf("unhandled command %q", cmd))
	}
}

func SerializeResult(format string, digestStr string, resultErr error, resultW io.Writer, stderr io.Writer) {
	result := &flattar.Event_Result{
		Digest: digestStr,
	}
	result.SetError(resultErr)
	ev := flattar.Event{Result: result}
	switch format {
	case FmtJson:
		marshaller := refmt.NewMarshallerAtlased(json.EncodeOptions{}, resultW, flattar.Atlas)
		if err := marshaller.Marshal(&ev); err != nil {
			panic(err)
		}
		fmt.Fprintln(resultW)
	case FmtDumb:
		if resultErr != nil {
			fmt.Fprintln(stderr, resultErr)
		} else {
			fmt.Fprintln(resultW, digestStr)
		}
	default:
		panic(fmt.Errorf("flattar: invalid format %s", format))
	}
}

/*
	Runs the create command.

	Also returns where the result should be reported:
	stdout, unless the archive itself is going there, in which case stderr.
*/
func executeCreate(ctx context.Context, cli baseCLI, stdout, stderr io.Writer) (_ string, resultW io.Writer, err error) {
	resultW = stdout

	// Pick an output.
	var out io.Writer
	switch cli.CreateCLI.File {
	case "", "-":
		resultW = stderr
		if f, ok := stdout.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
			return "", resultW, Errorf(flattar.ErrTerminalOutput, "refusing to write archive data to a terminal; use -f or redirect stdout")
		}
		out = stdout
	default:
		f, ferr := os.OpenFile(cli.CreateCLI.File, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if ferr != nil {
			return "", resultW, Errorf(flattar.ErrIO, "cannot create archive file: %s", ferr)
		}
		defer func() {
			if cerr := f.Close(); err == nil && cerr != nil {
				err = Errorf(flattar.ErrIO, "cannot finish archive file: %s", cerr)
			}
			if err != nil {
				os.Remove(cli.CreateCLI.File)
			}
		}()
		out = f
	}

	// Relative -C is taken from the process working directory, like tar does.
	dir, aerr := filepath.Abs(cli.CreateCLI.Dir)
	if aerr != nil {
		return "", resultW, Errorf(flattar.ErrUsage, "invalid directory %q: %s", cli.CreateCLI.Dir, aerr)
	}

	// Construct the sink stack.
	var inner flattar.Sink
	switch cli.CreateCLI.Pack {
	case tarsink.PackType:
		inner = tarsink.New(out)
	case zipsink.PackType:
		inner = zipsink.New(out)
	default:
		return "", resultW, Errorf(flattar.ErrUsage, "unsupported pack type %q", cli.CreateCLI.Pack)
	}
	dsink := digest.New(inner)

	// Drain the monitor into stderr for as long as archiving goes on.
	opts := []flattar.Option{flattar.WithDir(dir)}
	if cli.Verbose {
		events := make(chan flattar.Event)
		done := make(chan struct{})
		go func() {
			defer close(done)
			logEvents(cli.Format, events, stderr)
		}()
		defer func() {
			close(events)
			<-done
		}()
		opts = append(opts, flattar.WithMonitor(flattar.Monitor{Chan: events}), flattar.WithVerbose(true))
	}

	// Archive!
	err = flattar.Create(dsink, func(a *flattar.Archiver) error {
		for _, item := range cli.CreateCLI.Items {
			local, archive, renamed := splitItem(item)
			var err error
			if renamed {
				err = a.AddContext(ctx, local, archive)
			} else {
				err = a.AddContext(ctx, local)
			}
			if err != nil {
				return err
			}
		}
		return nil
	}, opts...)
	if err != nil {
		return "", resultW, err
	}
	return dsink.Digest(), resultW, nil
}

/*
	Splits "PATH[=ARCHIVEPATH]" on the last '=', so a local path containing '='
	can still be archived by giving it an explicit archive path ("a=b=b").
*/
func splitItem(item string) (local, archive string, renamed bool) {
	i := strings.LastIndexByte(item, '=')
	if i < 0 {
		return item, "", false
	}
	return item[:i], item[i+1:], true
}

func logEvents(format string, events <-chan flattar.Event, w io.Writer) {
	marshaller := refmt.NewMarshallerAtlased(json.EncodeOptions{}, w, flattar.Atlas)
	for ev := range events {
		if ev.Log == nil {
			continue
		}
		switch format {
		case FmtJson:
			if err := marshaller.Marshal(&ev); err != nil {
				panic(err)
			}
			fmt.Fprintln(w)
		default:
			fmt.Fprintf(w, "flattar: %s: %s\n", ev.Log.Level, ev.Log.Msg)
		}
	}
}
