// Package sdk provides a Go client for the birb-feathers feature store API.
//
// The client covers the full serving surface: online reads, point-in-time
// batch reads, feature registration and lookup, and cache invalidation.
// All methods are safe for concurrent use.
//
// Basic usage:
//
//	client, err := sdk.NewClient(sdk.DefaultConfig().
//	    WithBaseURL("http://feathers.internal:8080").
//	    WithAPIKey("my-api-key"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	resp, err := client.GetOnlineFeatures(ctx, &sdk.OnlineFeatureRequest{
//	    EntityID:     "user:123",
//	    FeatureNames: []string{"purchase_count_7d", "avg_session_minutes"},
//	})
//	if err != nil {
//	    if sdk.IsNotFound(err) {
//	        // entity has no values yet
//	    }
//	    log.Printf("serve failed: %v", err)
//	}
//
// Failed requests are retried automatically with exponential backoff and
// jitter. Only transient failures retry: network errors, timeouts, 429s
// and 5xx responses. Validation and auth errors surface immediately.
package sdk
