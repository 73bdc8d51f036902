package fsres

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/an-empty-string/amethyst/internal/gemini"
)

// geminiProtocolVersion is advertised to CGI scripts via SERVER_PROTOCOL.
const geminiProtocolVersion = "Gemini/0.16.0"

// runCGI spawns path as a subprocess per spec.md §4.6: a fixed environment
// merged over the process environment, no stdin, stdout/stderr captured
// to completion, then a leading header block parsed off stdout.
func (r *FilesystemResource) runCGI(ctx *gemini.Context, path string, scriptComponents, pathInfo []string) gemini.Response {
	scriptName := "/" + strings.Join(scriptComponents, "/")
	pathInfoStr := ""
	if len(pathInfo) > 0 {
		pathInfoStr = "/" + strings.Join(pathInfo, "/")
	}

	env := append(os.Environ(),
		"GATEWAY_INTERFACE=CGI/1.1",
		"QUERY_STRING="+ctx.Query,
		"REMOTE_ADDR="+ctx.Conn.PeerHost(),
		"SCRIPT_NAME="+scriptName,
		"PATH_INFO="+pathInfoStr,
		"SERVER_NAME="+ctx.Host,
		"SERVER_PORT="+strconv.Itoa(ctx.Conn.Server.Port()),
		"SERVER_PROTOCOL="+geminiProtocolVersion,
		"SERVER_SOFTWARE=Amethyst",
	)

	cmdCtx := ctx.Ctx
	if cmdCtx == nil {
		cmdCtx = context.Background()
	}

	cmd := exec.CommandContext(cmdCtx, path)
	cmd.Env = env
	cmd.Stdin = nil

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	r.logger.Info("CGI script exited",
		"path", path, "stdout_bytes", stdout.Len(), "stderr_bytes", stderr.Len())

	if err != nil {
		code := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
		}
		if stderr.Len() > 0 {
			r.logger.Warn("CGI script stderr", "path", path, "stderr", stderr.String())
		}
		return gemini.Fail(gemini.CGIError, "Script returned %d (see logs)", code)
	}

	return parseCGIOutput(stdout.Bytes())
}

// parseCGIOutput implements spec.md §4.6's header-block parser: consecutive
// "key: value" lines until a blank line or a line without a colon. The
// line that terminates the header block is, if non-empty, prepended back
// onto the body (a single variable holds it so it is never double-counted
// into both the header scan and the body).
func parseCGIOutput(stdout []byte) gemini.Response {
	mimeType := "text/gemini"
	status := gemini.Success

	lines := bytes.Split(stdout, []byte("\n"))
	i := 0
	var leftover []byte

	for ; i < len(lines); i++ {
		line := lines[i]
		if len(line) == 0 || !bytes.ContainsRune(line, ':') {
			leftover = line
			i++
			break
		}

		key, value, ok := splitHeaderLine(line)
		if !ok {
			leftover = line
			i++
			break
		}

		switch strings.ToLower(key) {
		case "content-type":
			mimeType = value
		case "status":
			if n, err := strconv.Atoi(value); err == nil {
				s := gemini.Status(n)
				if s.Valid() {
					status = s
				}
			}
		case "location":
			return gemini.Redirect(value, false)
		}
	}

	body := bytes.Join(lines[i:], []byte("\n"))
	if len(leftover) > 0 {
		body = append(append(append([]byte{}, leftover...), '\n'), body...)
	}

	return gemini.NewResponse(status, mimeType, body)
}

func splitHeaderLine(line []byte) (key, value string, ok bool) {
	idx := bytes.IndexByte(line, ':')
	if idx < 0 {
		return "", "", false
	}
	key = strings.TrimSpace(string(line[:idx]))
	value = strings.TrimSpace(string(line[idx+1:]))
	return key, value, true
}
