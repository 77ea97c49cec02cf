// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.

// Package flagkit is a client SDK that evaluates feature flags and
// typed properties against caller-supplied entities, computed from a
// live, remotely-managed configuration.
//
// # Overview
//
// A Client keeps a local configuration snapshot consistent with the
// server over an always-on push channel: the server notifies, the
// client refetches the full document, validates it and swaps it in
// atomically. Evaluations find the first matching targeting rule in
// order, match segments against entity attributes with typed
// operators, and apply a deterministic percentage rollout. Every
// evaluation is metered: occurrences are aggregated client-side by
// (subject, entity, segment) and flushed to the server in batches.
//
// # Basic Usage
//
//	client, err := flagkit.NewClient(flagkit.ConfigurationID{
//	    GUID:          "f13f1c35-9391-4c2c-a0c1-e1b5a1e2a8f1",
//	    EnvironmentID: "production",
//	    CollectionID:  "web",
//	},
//	    flagkit.WithBaseURL("https://eu-gb.apprapp.example.com"),
//	    flagkit.WithTokenProvider(flagkit.StaticToken("...")),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
//	defer cancel()
//	if err := client.WaitUntilOnline(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	entity := flagkit.NewEntity("user-42", map[string]flagkit.Value{
//	    "country": flagkit.StringValue("DE"),
//	    "age":     flagkit.Int64Value(31),
//	})
//
//	feature, err := client.GetFeature("new-checkout")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	enabled, err := flagkit.ValueAs[bool](feature, entity)
//
// # Handles
//
// GetFeature and GetProperty return handles bound to the snapshot that
// existed at the time of the call: repeated evaluations are stable even
// while the background worker swaps in newer configurations.
// GetFeatureProxy and GetPropertyProxy return live handles that
// re-resolve the current snapshot on every access.
//
// # Offline behavior
//
// The background worker is Online, Offline with a reason, or Defunct.
// While offline, reads follow the policy chosen with WithOfflineMode:
// OfflineFail returns an OfflineError, OfflineCache (the default)
// serves the last fetched snapshot, and OfflineFallback serves a
// caller-supplied snapshot built with NewSnapshot.
//
// # Metering
//
// Evaluations are aggregated in-process and pushed on the interval set
// with WithMeteringInterval. Transmission is best effort: a failed
// batch is dropped, not retried. WithMeteringDisabled turns metering
// off entirely.
//
// # Concurrency
//
// All Client methods are safe for concurrent use. An evaluation always
// sees one coherent snapshot; concurrent evaluations may land on
// different snapshots when a swap happens between them.
package flagkit
