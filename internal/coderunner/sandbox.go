package coderunner

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// ExecOutcome is what one sandboxed run produced.
type ExecOutcome struct {
	Stdout    string
	Stderr    string
	ExitCode  int
	RuntimeMS int64
}

// Sandbox runs one (language, source, stdin) tuple in isolation.
type Sandbox interface {
	Run(ctx context.Context, language, source, stdin string) (ExecOutcome, error)
}

// languageSpec binds a supported language to its interpreter image.
type languageSpec struct {
	image    string
	filename string
	command  string
}

var languages = map[string]languageSpec{
	"python":     {image: "python:3.12-alpine", filename: "main.py", command: "python3 /work/main.py"},
	"javascript": {image: "node:22-alpine", filename: "main.js", command: "node /work/main.js"},
	"java":       {image: "eclipse-temurin:21", filename: "Main.java", command: "java /work/Main.java"},
}

// ContainerSandbox runs each test case in a throwaway container with
// no network, a memory cap, and a CPU-time ulimit inside the
// entrypoint. One container per run; nothing is reused between
// candidates.
type ContainerSandbox struct {
	startTimeout time.Duration
}

func NewContainerSandbox(startTimeout time.Duration) *ContainerSandbox {
	if startTimeout <= 0 {
		startTimeout = 30 * time.Second
	}
	return &ContainerSandbox{startTimeout: startTimeout}
}

func (s *ContainerSandbox) Run(ctx context.Context, language, source, stdin string) (ExecOutcome, error) {
	spec, ok := languages[strings.ToLower(strings.TrimSpace(language))]
	if !ok {
		return ExecOutcome{}, ErrUnsupportedLanguage
	}

	script := fmt.Sprintf(
		"ulimit -t %d; %s < /work/stdin.txt > /work/stdout.txt 2> /work/stderr.txt; echo -n $? > /work/exit.txt",
		int(cpuTimeCap.Seconds()), spec.command)

	req := testcontainers.ContainerRequest{
		Image: spec.image,
		Cmd:   []string{"sh", "-c", script},
		Files: []testcontainers.ContainerFile{
			{Reader: strings.NewReader(source), ContainerFilePath: "/work/" + spec.filename, FileMode: 0o644},
			{Reader: strings.NewReader(stdin), ContainerFilePath: "/work/stdin.txt", FileMode: 0o644},
		},
		HostConfigModifier: func(hc *container.HostConfig) {
			hc.NetworkMode = "none"
			hc.Memory = memCapBytes
			hc.AutoRemove = false
		},
		WaitingFor: wait.ForExit().WithExitTimeout(s.startTimeout + cpuTimeCap),
	}

	started := time.Now()
	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return ExecOutcome{}, fmt.Errorf("coderunner: start sandbox: %w", err)
	}
	defer func() { _ = ctr.Terminate(context.WithoutCancel(ctx)) }()
	runtimeMS := time.Since(started).Milliseconds()

	out := ExecOutcome{RuntimeMS: runtimeMS}
	out.Stdout, err = readContainerFile(ctx, ctr, "/work/stdout.txt")
	if err != nil {
		return ExecOutcome{}, err
	}
	out.Stderr, _ = readContainerFile(ctx, ctr, "/work/stderr.txt")
	exitRaw, _ := readContainerFile(ctx, ctr, "/work/exit.txt")
	out.ExitCode, _ = strconv.Atoi(strings.TrimSpace(exitRaw))
	return out, nil
}

func readContainerFile(ctx context.Context, ctr testcontainers.Container, path string) (string, error) {
	r, err := ctr.CopyFileFromContainer(ctx, path)
	if err != nil {
		return "", fmt.Errorf("coderunner: copy %s: %w", path, err)
	}
	defer r.Close()
	b, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("coderunner: read %s: %w", path, err)
	}
	return string(b), nil
}
