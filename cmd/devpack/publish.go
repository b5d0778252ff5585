package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-dev/devpack/internal/config"
	"github.com/vango-dev/devpack/internal/publish"
)

func publishCmd(opts *globalOptions) *cobra.Command {
	var (
		bucket string
		prefix string
	)

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Upload the production build to S3",
		Long: `Upload every file of the build output to an S3 bucket.

Hashed files under the assets directory are uploaded as immutable;
index.html and other files are marked no-cache. Credentials are read from
AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY and AWS_SESSION_TOKEN.

Examples:
  devpack publish --bucket=my-site
  devpack publish --bucket=my-site --prefix=releases/v2`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(config.Overrides{
				Bucket: stringFlag(cmd, "bucket", bucket),
				Prefix: stringFlag(cmd, "prefix", prefix),
			})
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			publisher, err := publish.New(cfg, publish.NewS3Client(ctx, cfg.Publish), opts.logger)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			info(out, "Publishing %s to s3://%s/%s", cfg.Build.OutDir, cfg.Publish.Bucket, cfg.Publish.Prefix)
			result, err := publisher.Publish(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(out)
			success(out, "Uploaded %d files (%s) in %s",
				len(result.Objects), formatBytes(result.TotalSize()), result.Duration.Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().StringVar(&bucket, "bucket", "", "Destination bucket (default from publish.bucket)")
	cmd.Flags().StringVar(&prefix, "prefix", "", "Key prefix inside the bucket")

	return cmd
}
