package app

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/hitoshi/souvenir/internal/config"
	"github.com/hitoshi/souvenir/internal/identity"
	"github.com/hitoshi/souvenir/internal/metrics"
	"github.com/hitoshi/souvenir/internal/model"
	"github.com/hitoshi/souvenir/internal/predict"
	"github.com/hitoshi/souvenir/internal/security"
	"github.com/hitoshi/souvenir/internal/tokenwatch"
	"golang.org/x/term"
)

// readPassword は端末からエコーなしでパスワードを読む。テストでは差し替える。
var readPassword = term.ReadPassword

// passwordEnv はパスワードを渡す環境変数。設定されていればプロンプトを出さない。
const passwordEnv = "SOUVENIR_PASSWORD"

type predictOptions struct {
	email    string
	image    string
	imageURL string
}

func parsePredictFlags(args []string, stderr io.Writer) (predictOptions, error) {
	var opts predictOptions

	fs := flag.NewFlagSet("predict", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.email, "email", os.Getenv("SOUVENIR_EMAIL"), "email address to sign in with")
	fs.StringVar(&opts.image, "image", "", "path of the image file to classify")
	fs.StringVar(&opts.imageURL, "url", "", "URL of the image to classify")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.email == "" {
		return opts, errors.New("-email is required")
	}
	if (opts.image == "") == (opts.imageURL == "") {
		return opts, errors.New("exactly one of -image or -url is required")
	}
	return opts, nil
}

func promptPassword(stderr io.Writer) (string, error) {
	if pw := os.Getenv(passwordEnv); pw != "" {
		return pw, nil
	}
	fmt.Fprint(stderr, "Password: ")
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(pw), nil
}

// predictOutput はpredictサブコマンドの出力形式。
type predictOutput struct {
	Outcome string                  `json:"outcome"`
	Result  *model.PredictionResult `json:"result,omitempty"`
	Message string                  `json:"message,omitempty"`
}

// runPredict はサインインして画像を1枚分類し、結果をJSONでstdoutに書く。
//
// IDトークンはtokenwatch.Watcherがcookie jarへ書き写したものを使う。
// 分類が成功しなかった場合は結果を書いたうえでエラーを返す。
func runPredict(ctx context.Context, cfg *config.Config, log *slog.Logger, stdout, stderr io.Writer, args []string) error {
	opts, err := parsePredictFlags(args, stderr)
	if err != nil {
		return err
	}
	password, err := promptPassword(stderr)
	if err != nil {
		return err
	}

	jar, err := tokenwatch.NewJarStore(cfg.APIBaseURL)
	if err != nil {
		return err
	}

	identityClient := identity.NewClient(
		&http.Client{Timeout: cfg.APITimeout},
		cfg.IdentityAPIKey, cfg.IdentityBaseURL, cfg.SecureTokenURL, log,
	)
	session := identity.NewSession(identityClient, log)

	watcher := tokenwatch.New(tokenwatch.FromSession(session), jar, log)
	watcher.Start(ctx)
	defer watcher.Stop()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go session.Run(runCtx)

	if _, err := session.SignIn(ctx, opts.email, password); err != nil {
		return fmt.Errorf("sign in failed: %w", err)
	}
	defer session.SignOut()

	idToken, ok := jar.Value(model.CookieIDToken)
	if !ok || idToken == "" {
		return errors.New("no ID token available after sign in")
	}

	predictClient := predict.NewClient(&http.Client{Jar: jar.Jar()}, cfg.APIBaseURL, cfg.PredictTimeout, log)
	flow := predict.NewFlow(
		predictClient,
		security.NewImageFetcher(cfg.PredictTimeout, cfg.PredictMaxBytes),
		cfg.PredictMaxBytes, metrics.Nop{}, log,
	)

	var outcome predict.Outcome
	if opts.imageURL != "" {
		outcome, err = flow.SubmitURL(ctx, idToken, opts.imageURL)
	} else {
		outcome, err = submitFile(ctx, flow, idToken, opts.image)
	}
	if err != nil {
		return err
	}

	out := predictOutput{Outcome: outcome.Kind.String(), Result: outcome.Result, Message: outcome.Message}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}

	if outcome.Kind != predict.Success {
		return fmt.Errorf("prediction %s: %s", outcome.Kind, outcome.Message)
	}
	return nil
}

func submitFile(ctx context.Context, flow *predict.Flow, idToken, path string) (predict.Outcome, error) {
	f, err := os.Open(path)
	if err != nil {
		return predict.Outcome{}, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return predict.Outcome{}, fmt.Errorf("failed to stat image: %w", err)
	}

	contentType, err := detectContentType(f, path)
	if err != nil {
		return predict.Outcome{}, err
	}

	return flow.Submit(ctx, idToken, predict.Upload{
		Filename:    filepath.Base(path),
		ContentType: contentType,
		Size:        info.Size(),
		Body:        f,
	})
}

// detectContentType は拡張子からContent-Typeを決め、不明な場合は先頭512バイトから推定する。
// 推定した場合は読み取り位置を先頭に戻す。
func detectContentType(f io.ReadSeeker, path string) (string, error) {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct, nil
	}
	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", fmt.Errorf("failed to read image: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("failed to rewind image: %w", err)
	}
	return http.DetectContentType(head[:n]), nil
}
