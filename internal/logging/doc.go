// Package logging provides structured logging for the review service.
//
// Logger wraps Zap and pulls correlation fields out of the context on every
// call: the OpenTelemetry trace and span IDs, the form session ID, the HTTP
// request ID and, once one exists, the submission ID.
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig(), nil)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithSessionID(ctx, sess.ID)
//	logger.Info(ctx, "answers applied", zap.Int("changed", n))
//
// Stdout output passes through a redacting encoder. Fields named like
// credentials are masked, and so are string values that look like bearer
// tokens or signed webhook URLs. Use Secret for config.Secret values.
//
// Errors and above are never sampled. Lower levels are sampled per level
// according to SamplingConfig.
//
// Tests use NewTestLogger, which records entries in memory.
package logging
