package cli

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/bufbuild/connect-go"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/net/http2"

	"github.com/animus-coder/oraclebench/internal/gen"
	"github.com/animus-coder/oraclebench/internal/llm/configbuilder"
	"github.com/animus-coder/oraclebench/internal/logging"
	"github.com/animus-coder/oraclebench/internal/observability"
	"github.com/animus-coder/oraclebench/internal/rpc"
	"github.com/animus-coder/oraclebench/internal/rpc/connectjson"
	evalrpc "github.com/animus-coder/oraclebench/internal/rpc/eval"
)

// NewRunCmd executes one evaluation run, locally by default or streamed
// from a daemon with --remote.
func NewRunCmd(opts *Options) *cobra.Command {
	var (
		remote        bool
		modelOverride string
		plannerModel  string
		repairModel   string
		reviewerModel string
		fallbackMode  string
		maxIterations int
		seed          int
	)

	cmd := &cobra.Command{
		Use:   "run <scenario>",
		Short: "Run one evaluation scenario and report pass/fail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			req := rpc.RunEvalRequest{
				RunID:         uuid.NewString(),
				Scenario:      args[0],
				Model:         modelOverride,
				PlannerModel:  plannerModel,
				RepairModel:   repairModel,
				ReviewerModel: reviewerModel,
				FallbackMode:  fallbackMode,
				MaxIterations: maxIterations,
				Seed:          seed,
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			if remote {
				baseURL := daemonURL(cfg.Server.Addr)
				switch strings.ToLower(strings.TrimSpace(cfg.Server.Transport)) {
				case "ndjson":
					return runNDJSON(ctx, cmd, baseURL+"/eval/run", req)
				default:
					return runConnect(ctx, cmd, baseURL+evalrpc.ConnectRunEvalProcedure, req)
				}
			}

			logger, err := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck // best-effort

			registry, err := configbuilder.BuildRegistryFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("build registry: %w", err)
			}
			runner := &evalrpc.EvalRunner{
				Cfg:     cfg,
				Gen:     gen.New(registry, cfg.Pipeline.TokenFloor, logger),
				Metrics: observability.NewMetrics(),
				Logger:  logger,
			}

			httpReq := (&http.Request{}).WithContext(ctx)
			events, err := runner.Run(httpReq, req)
			if err != nil {
				return err
			}
			return renderStream(cmd, events)
		},
	}

	cmd.Flags().BoolVar(&remote, "remote", false, "Stream the run from the daemon instead of running locally")
	cmd.Flags().StringVar(&modelOverride, "model", "", "Override target model id for this run")
	cmd.Flags().StringVar(&plannerModel, "planner-model", "", "Override planner model id for this run")
	cmd.Flags().StringVar(&repairModel, "repair-model", "", "Override repair model id for this run")
	cmd.Flags().StringVar(&reviewerModel, "reviewer-model", "", "Override reviewer model id for this run")
	cmd.Flags().StringVar(&fallbackMode, "fallback", "", "Deterministic fallback mode: off, on-fail, always")
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "Override the iteration budget for this run")
	cmd.Flags().IntVar(&seed, "seed", 0, "Sampling seed forwarded to providers that support it")
	return cmd
}

func daemonURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return addr
	}
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

func runNDJSON(ctx context.Context, cmd *cobra.Command, url string, reqBody rpc.RunEvalRequest) error {
	data, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("daemon returned status %d", resp.StatusCode)
	}

	out := make(chan rpc.RunEvalEvent, 16)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			var evt rpc.RunEvalEvent
			if err := json.Unmarshal(scanner.Bytes(), &evt); err != nil {
				errCh <- fmt.Errorf("decode event: %w", err)
				return
			}
			out <- evt
		}
		errCh <- scanner.Err()
	}()

	if err := renderStream(cmd, out); err != nil {
		return err
	}
	return <-errCh
}

func runConnect(ctx context.Context, cmd *cobra.Command, url string, reqBody rpc.RunEvalRequest) error {
	client := connect.NewClient[rpc.RunEvalStreamRequest, rpc.RunEvalEvent](buildH2CClient(), url, connect.WithCodec(connectjson.Codec{}))
	stream := client.CallBidiStream(ctx)

	if err := stream.Send(&rpc.RunEvalStreamRequest{Run: &reqBody}); err != nil {
		return err
	}

	// propagate cancellation to the daemon.
	go func() {
		<-ctx.Done()
		_ = stream.Send(&rpc.RunEvalStreamRequest{Cancel: true, RunID: reqBody.RunID})
		_ = stream.CloseRequest()
	}()

	out := make(chan rpc.RunEvalEvent, 16)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		for {
			evt, err := stream.Receive()
			if errors.Is(err, io.EOF) {
				errCh <- nil
				return
			}
			if err != nil {
				errCh <- err
				return
			}
			out <- *evt
		}
	}()

	if err := renderStream(cmd, out); err != nil {
		return err
	}
	if err := <-errCh; err != nil {
		return err
	}
	_ = stream.CloseRequest()
	return stream.CloseResponse()
}

// renderStream prints events as they arrive and turns the terminal event
// into the process outcome: a failed run is a non-nil error, so the process
// exits 1.
func renderStream(cmd *cobra.Command, events <-chan rpc.RunEvalEvent) error {
	out := cmd.OutOrStdout()
	var final *rpc.RunEvalEvent
	for evt := range events {
		switch evt.Type {
		case "state":
			fmt.Fprintf(out, "[iter %d] %s\n", evt.Iteration, evt.State)
		case "parse":
			if evt.OK {
				fmt.Fprintf(out, "[iter %d] parsed: %s\n", evt.Iteration, evt.Message)
			} else {
				fmt.Fprintf(out, "[iter %d] parse failed: %s\n", evt.Iteration, evt.Error)
			}
		case "validation":
			if evt.OK {
				fmt.Fprintf(out, "[iter %d] validation passed\n", evt.Iteration)
			} else {
				fmt.Fprintf(out, "[iter %d] validation failed: %s\n", evt.Iteration, evt.Message)
			}
		case "done", "error":
			if evt.Done || final == nil {
				e := evt
				final = &e
			}
		}
	}

	if final == nil {
		return fmt.Errorf("stream ended without a terminal event")
	}
	if final.Type == "error" && final.Error != "" {
		return fmt.Errorf("run aborted: %s", final.Error)
	}
	if final.Result != nil {
		fmt.Fprintf(out, "run %s: %s after %d iteration(s)\n", final.Result.RunID, passFail(final.Result.OK), final.Result.Iterations)
	}
	if !final.OK {
		return fmt.Errorf("scenario did not pass")
	}
	return nil
}

func passFail(ok bool) string {
	if ok {
		return "PASS"
	}
	return "FAIL"
}

func buildH2CClient() *http.Client {
	return &http.Client{
		Transport: &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, network, addr)
			},
		},
	}
}
