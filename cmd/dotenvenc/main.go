package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rowjay/dotenvenc/internal/app"
	"github.com/rowjay/dotenvenc/internal/config"
	"github.com/rowjay/dotenvenc/internal/cryptoutil"
	"github.com/rowjay/dotenvenc/internal/locate"
	"github.com/rowjay/dotenvenc/internal/logging"
	"github.com/rowjay/dotenvenc/internal/notify"
	"github.com/rowjay/dotenvenc/internal/storage"
	"github.com/rowjay/dotenvenc/internal/version"
)

type rootFlags struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string
}

type overrideFlags struct {
	Password       string
	Key            string
	DecryptedName  string
	EncryptedName  string
	BoundaryMarker string
	LockFile       string
	Parallelism    int
	Remote         string
	RemotePath     string
	RemotePrefix   string
	Project        string
	Compression    string
	S3Endpoint     string
	S3Bucket       string
	S3AccessKey    string
	S3SecretKey    string
	S3Region       string
	S3UseSSL       string
	S3PathStyle    string
}

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("✗"), err)
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &rootFlags{}
	overrides := &overrideFlags{}

	rootCmd := &cobra.Command{
		Use:           "dotenvenc",
		Short:         "Encrypt .env files into .env.enc and back with a password",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&root.ConfigPath, "config", "", "Path to config file (yaml/toml/json)")
	pf.StringVar(&root.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.StringVar(&root.LogFormat, "log-format", "", "Log format (json, console)")

	pf.StringVarP(&overrides.Password, "password", "p", "", "Encryption password (or DOTENVENC_PASSWORD)")
	pf.StringVar(&overrides.Key, "key", "", "Raw 32-byte key (base64 or hex) instead of a password")
	pf.StringVar(&overrides.DecryptedName, "decrypted-name", "", "Default plaintext file name (.env)")
	pf.StringVar(&overrides.EncryptedName, "encrypted-name", "", "Default encrypted file name (.env.enc)")
	pf.StringVar(&overrides.BoundaryMarker, "boundary", "", "File that stops the upward search (package.json)")
	pf.StringVar(&overrides.LockFile, "lock-file", "", "Lock file guarding concurrent writers")
	pf.IntVar(&overrides.Parallelism, "parallel", 0, "Files processed at once in batch mode")

	pf.StringVar(&overrides.Remote, "remote", "", "Remote backend (local, s3)")
	pf.StringVar(&overrides.RemotePath, "remote-path", "", "Directory for the local remote backend")
	pf.StringVar(&overrides.RemotePrefix, "remote-prefix", "", "Key prefix for remote copies")
	pf.StringVar(&overrides.Project, "project", "", "Project name for remote copies (default: artifact directory name)")
	pf.StringVar(&overrides.Compression, "compression", "", "Remote copy compression (none, gzip, zstd)")
	pf.StringVar(&overrides.S3Endpoint, "s3-endpoint", "", "S3 endpoint (MinIO/OSS)")
	pf.StringVar(&overrides.S3Bucket, "s3-bucket", "", "S3 bucket")
	pf.StringVar(&overrides.S3AccessKey, "s3-access-key", "", "S3 access key")
	pf.StringVar(&overrides.S3SecretKey, "s3-secret-key", "", "S3 secret key")
	pf.StringVar(&overrides.S3Region, "s3-region", "", "S3 region")
	pf.StringVar(&overrides.S3UseSSL, "s3-ssl", "", "Use SSL for S3 endpoint (true/false)")
	pf.StringVar(&overrides.S3PathStyle, "s3-path-style", "", "Force path-style S3 (true/false)")

	rootCmd.AddCommand(newEncryptCmd(root, overrides))
	rootCmd.AddCommand(newDecryptCmd(root, overrides))
	rootCmd.AddCommand(newLocateCmd(root, overrides))
	rootCmd.AddCommand(newPushCmd(root, overrides))
	rootCmd.AddCommand(newPullCmd(root, overrides))
	rootCmd.AddCommand(newListCmd(root, overrides))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func newEncryptCmd(root *rootFlags, overrides *overrideFlags) *cobra.Command {
	var input, output string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "encrypt [FILE...]",
		Short: "Encrypt .env into .env.enc",
		Long: "Encrypt a plaintext file. Without arguments the default file is searched for\n" +
			"upward from the working directory. With FILE arguments each file is\n" +
			"encrypted beside itself with the encrypted suffix appended.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkDryRun(dryRun, args); err != nil {
				return err
			}
			env, err := setup(cmd, root, overrides, func(cfg *config.Config) {
				if dryRun {
					cfg.Write = false
				}
			})
			if err != nil {
				return err
			}
			defer env.cancel()
			if len(args) > 0 {
				if input != "" || output != "" {
					return fmt.Errorf("--input/--output cannot be combined with FILE arguments")
				}
				results, err := env.app.EncryptAll(env.ctx, env.secret, args)
				if err != nil {
					return err
				}
				return env.report(cmd, "encrypted", results...)
			}
			res, err := env.app.Encrypt(env.ctx, env.secret, input, output)
			if err != nil {
				return err
			}
			return env.report(cmd, "encrypted", res)
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "Plaintext file (default: search for .env)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Encrypted file (default: .env.enc beside the input)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the encrypted text instead of writing it")
	return cmd
}

func newDecryptCmd(root *rootFlags, overrides *overrideFlags) *cobra.Command {
	var input, output string
	var dryRun, verify bool

	cmd := &cobra.Command{
		Use:   "decrypt [FILE...]",
		Short: "Decrypt .env.enc into .env",
		Long: "Decrypt an encrypted file. A wrong password is not detected by the format;\n" +
			"use --verify to refuse output that does not parse as a dotenv file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkDryRun(dryRun, args); err != nil {
				return err
			}
			env, err := setup(cmd, root, overrides, func(cfg *config.Config) {
				if dryRun {
					cfg.Write = false
				}
				if verify {
					cfg.Verify = true
				}
			})
			if err != nil {
				return err
			}
			defer env.cancel()
			if len(args) > 0 {
				if input != "" || output != "" {
					return fmt.Errorf("--input/--output cannot be combined with FILE arguments")
				}
				results, err := env.app.DecryptAll(env.ctx, env.secret, args)
				if err != nil {
					return err
				}
				return env.report(cmd, "decrypted", results...)
			}
			res, err := env.app.Decrypt(env.ctx, env.secret, input, output)
			if err != nil {
				return err
			}
			return env.report(cmd, "decrypted", res)
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "Encrypted file (default: search for .env.enc)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Plaintext file (default: .env beside the input)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the plaintext instead of writing it")
	cmd.Flags().BoolVar(&verify, "verify", false, "Refuse output that is not a dotenv file")
	return cmd
}

func newLocateCmd(root *rootFlags, overrides *overrideFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "locate [NAME]",
		Short: "Print the directory the upward search finds NAME in",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root, overrides)
			if err != nil {
				return err
			}
			name := cfg.Files.DecryptedName
			if len(args) == 1 {
				name = args[0]
			}
			dir, err := locate.New(cfg.Files.BoundaryMarker).Locate(name)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), dir)
			return nil
		},
	}
}

func newPushCmd(root *rootFlags, overrides *overrideFlags) *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Upload a sealed copy of .env.enc to remote storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setupRemote(cmd, root, overrides)
			if err != nil {
				return err
			}
			defer env.cancel()
			manifest, err := env.app.Push(env.ctx, env.secret, input)
			if err != nil {
				return err
			}
			env.log.Info().Str("key", manifest.Key).Str("fingerprint", manifest.Fingerprint).Msg("push completed")
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", manifest.Key, manifest.Fingerprint)
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "Encrypted file (default: search for .env.enc)")
	return cmd
}

func newPullCmd(root *rootFlags, overrides *overrideFlags) *cobra.Command {
	var object, output string
	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Restore .env.enc from remote storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setupRemote(cmd, root, overrides)
			if err != nil {
				return err
			}
			defer env.cancel()
			res, err := env.app.Pull(env.ctx, env.secret, object, output)
			if err != nil {
				return err
			}
			env.log.Info().Str("key", res.ObjectKey).Str("path", res.Path).Msg("pull completed")
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", res.Path, res.Fingerprint)
			return nil
		},
	}
	cmd.Flags().StringVar(&object, "object", "", "Remote object key (default: newest copy)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Encrypted file to write (default: .env.enc location)")
	return cmd
}

func newListCmd(root *rootFlags, overrides *overrideFlags) *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List remote copies of .env.enc",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root, overrides)
			if err != nil {
				return err
			}
			logger := logging.Configure(cfg.Global.LogLevel, cfg.Global.LogFormat, cmd.ErrOrStderr())
			store, err := storage.New(cfg.Remote)
			if err != nil {
				return err
			}
			svc := app.New(app.OptionsFromConfig(cfg), logger).WithRemote(store, cfg.Remote)
			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Global.OperationTimeout)
			defer cancel()
			items, err := svc.List(ctx, input)
			if err != nil {
				return err
			}
			for _, item := range items {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", item.Key, item.Size)
			}
			logger.Debug().Int("count", len(items)).Msg("list completed")
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "Encrypted file whose copies to list")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "dotenvenc %s (commit %s, built %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}

// errDryRunBatch keeps several files' output from running together on stdout.
var errDryRunBatch = errors.New("--dry-run accepts at most one FILE")

func checkDryRun(dryRun bool, args []string) error {
	if dryRun && len(args) > 1 {
		return errDryRunBatch
	}
	return nil
}

type runEnv struct {
	ctx    context.Context
	cancel context.CancelFunc
	app    *app.App
	secret app.Secret
	log    zerolog.Logger
}

// report prints one "path<TAB>fingerprint" line per written file, or the
// content itself for dry runs.
func (e *runEnv) report(cmd *cobra.Command, verb string, results ...*app.Result) error {
	out := cmd.OutOrStdout()
	for _, res := range results {
		if !e.app.Opts.Write {
			if _, err := out.Write(res.Data); err != nil {
				return err
			}
			continue
		}
		e.log.Debug().Str("path", res.Path).Str("md5", res.Fingerprint).Msg(verb)
		fmt.Fprintf(cmd.ErrOrStderr(), "%s %s %s\n", color.GreenString("✓"), verb, res.Path)
		fmt.Fprintf(out, "%s\t%s\n", res.Path, res.Fingerprint)
	}
	return nil
}

func setup(cmd *cobra.Command, root *rootFlags, overrides *overrideFlags, adjust func(*config.Config)) (*runEnv, error) {
	cfg, err := loadConfig(root, overrides)
	if err != nil {
		return nil, err
	}
	if adjust != nil {
		adjust(cfg)
	}
	return newRunEnv(cmd, cfg)
}

func setupRemote(cmd *cobra.Command, root *rootFlags, overrides *overrideFlags) (*runEnv, error) {
	cfg, err := loadConfig(root, overrides)
	if err != nil {
		return nil, err
	}
	store, err := storage.New(cfg.Remote)
	if err != nil {
		return nil, err
	}
	env, err := newRunEnv(cmd, cfg)
	if err != nil {
		return nil, err
	}
	env.app.WithRemote(store, cfg.Remote)
	if targets := notify.FromConfig(cfg.Notifications); !targets.Empty() {
		env.app.Notifier = targets
	}
	return env, nil
}

func newRunEnv(cmd *cobra.Command, cfg *config.Config) (*runEnv, error) {
	secret, err := secretFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	logger := logging.Configure(cfg.Global.LogLevel, cfg.Global.LogFormat, cmd.ErrOrStderr())
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Global.OperationTimeout)
	return &runEnv{
		ctx:    ctx,
		cancel: cancel,
		app:    app.New(app.OptionsFromConfig(cfg), logger),
		secret: secret,
		log:    logger,
	}, nil
}

func secretFromConfig(cfg *config.Config) (app.Secret, error) {
	if cfg.Key != "" {
		key, err := cryptoutil.ParseKey(cfg.Key)
		if err != nil {
			return app.Secret{}, err
		}
		return app.RawKey(key), nil
	}
	if cfg.Password == "" && term.IsTerminal(int(os.Stdin.Fd())) {
		password, err := promptPassword("Password: ")
		if err != nil {
			return app.Secret{}, err
		}
		cfg.Password = password
	}
	if cfg.Password == "" {
		return app.Secret{}, fmt.Errorf("%w (use --password or DOTENVENC_PASSWORD)", app.ErrPasswordRequired)
	}
	return app.Password(cfg.Password), nil
}

func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, color.New(color.Bold).Sprint(prompt))
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(password), nil
}

func loadConfig(root *rootFlags, overrides *overrideFlags) (*config.Config, error) {
	cfg, err := config.Load(root.ConfigPath)
	if err != nil {
		return nil, err
	}
	applyOverrides(cfg, root, overrides)
	return cfg, nil
}

func applyOverrides(cfg *config.Config, root *rootFlags, overrides *overrideFlags) {
	if root.LogLevel != "" {
		cfg.Global.LogLevel = root.LogLevel
	}
	if root.LogFormat != "" {
		cfg.Global.LogFormat = root.LogFormat
	}

	if overrides.Password != "" {
		cfg.Password = overrides.Password
	}
	if overrides.Key != "" {
		cfg.Key = overrides.Key
	}
	if overrides.DecryptedName != "" {
		cfg.Files.DecryptedName = overrides.DecryptedName
	}
	if overrides.EncryptedName != "" {
		cfg.Files.EncryptedName = overrides.EncryptedName
	}
	if overrides.BoundaryMarker != "" {
		cfg.Files.BoundaryMarker = overrides.BoundaryMarker
	}
	if overrides.LockFile != "" {
		cfg.Global.LockFile = overrides.LockFile
	}
	if overrides.Parallelism > 0 {
		cfg.Global.MaxParallelism = overrides.Parallelism
	}

	if overrides.Remote != "" {
		cfg.Remote.Backend = overrides.Remote
	}
	if overrides.RemotePath != "" {
		cfg.Remote.Local.Path = overrides.RemotePath
	}
	if overrides.RemotePrefix != "" {
		cfg.Remote.Prefix = overrides.RemotePrefix
	}
	if overrides.Project != "" {
		cfg.Remote.Project = overrides.Project
	}
	if overrides.Compression != "" {
		cfg.Remote.Compression = overrides.Compression
	}
	if overrides.S3Endpoint != "" {
		cfg.Remote.S3.Endpoint = overrides.S3Endpoint
	}
	if overrides.S3Bucket != "" {
		cfg.Remote.S3.Bucket = overrides.S3Bucket
	}
	if overrides.S3AccessKey != "" {
		cfg.Remote.S3.AccessKey = overrides.S3AccessKey
	}
	if overrides.S3SecretKey != "" {
		cfg.Remote.S3.SecretKey = overrides.S3SecretKey
	}
	if overrides.S3Region != "" {
		cfg.Remote.S3.Region = overrides.S3Region
	}
	if overrides.S3UseSSL != "" {
		cfg.Remote.S3.UseSSL = parseBool(overrides.S3UseSSL)
	}
	if overrides.S3PathStyle != "" {
		cfg.Remote.S3.ForcePathStyle = parseBool(overrides.S3PathStyle)
	}

	cfg.Remote.Backend = strings.ToLower(cfg.Remote.Backend)
	cfg.Remote.Compression = strings.ToLower(cfg.Remote.Compression)
}

func parseBool(v string) bool {
	return strings.EqualFold(v, "true") || v == "1"
}
