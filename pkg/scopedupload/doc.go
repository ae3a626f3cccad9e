// Package scopedupload uploads files to an object-storage gateway using
// capability-scoped signed tokens.
//
// Every token grants exactly one permission: POST on /file/<base>/<item> for
// an upload, or GET on /api/image/<base>/<item> with the configured default
// query for a retrieval URL. A token is never reused across items or scopes.
//
// # Basic Usage
//
//	uploader, err := scopedupload.New(&scopedupload.GatewayConfig{
//	    Endpoint:           "https://img.example.com",
//	    BasePath:           "blog/2024",
//	    SigningSecret:      "your-secret",
//	    SigningAlgorithm:   scopedupload.AlgorithmHS256,
//	    TokenIssuer:        "blog",
//	    DefaultQueryParams: "w=800&fmt=webp",
//	})
//	if err != nil {
//	    // errors.Is(err, scopedupload.ErrConfigMissing)
//	}
//
//	items := []*scopedupload.UploadItem{
//	    {FileName: "cat.png", Buffer: pngBytes},
//	    {FileName: "dog.jpg", Base64: jpegBase64},
//	}
//	results, err := uploader.UploadAll(ctx, items)
//	// items[0].RetrievalURL == "https://img.example.com/api/image/blog/2024/cat.png?w=800&fmt=webp&token=..."
//
// # Batch Semantics
//
// Items are processed sequentially in input order. Items without a name or
// payload are skipped. The first failure aborts the batch with an
// *UploadError; earlier items keep their RetrievalURL and have their payload
// cleared. Nothing is retried here: retries belong to the Transport
// (see WithRetry).
//
// # Collaborators
//
// Signing, transport, MIME lookup and message text are all replaceable:
//
//	uploader, err := scopedupload.New(cfg,
//	    scopedupload.WithSigner(mySigner),
//	    scopedupload.WithTransport(scopedupload.NewHTTPTransport(scopedupload.WithRetry(3, time.Second))),
//	    scopedupload.WithMessages(messages.New("zh-CN")),
//	    scopedupload.WithLogger(slog.Default()),
//	)
package scopedupload
