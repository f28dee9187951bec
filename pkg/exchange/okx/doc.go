// Package okx implements the authenticated OKX v5 REST request pipeline.
//
// Every request is signed with HMAC-SHA256 over
// timestamp + METHOD + requestPath + body, keyed by the API secret, and sent
// with the OK-ACCESS-* headers. The Executor retries failed attempts with
// exponential backoff and, when certificate validation fails, downgrades the
// shared tlspolicy.Policy so that later attempts and later calls skip
// verification.
//
// Basic usage:
//
//	config := core.DefaultConfig().WithCredentials(&core.Credentials{
//		APIKey:     apiKey,
//		SecretKey:  secretKey,
//		Passphrase: passphrase,
//	})
//	exec, err := okx.NewExecutor(config)
//	if err != nil {
//		return err
//	}
//	defer exec.Close()
//
//	payload, err := exec.Request(ctx, "GET", "/public/time", nil)
package okx
