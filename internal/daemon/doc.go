// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

/*
Package daemon implements the long-running background loops of the
archivarius daemon: the filesystem watcher, the backup sync loop, and
the checkpoint retention sweep.

# Data Flow

The components are wired through a shared coalescing queue:

	Watcher ──(debounced per study)──> StudyQueue ──> SyncLoop
	                                                      │
	SweepLoop (interval only) ─────────────────────> checkpoint.Manager

The watcher follows trial_meta.json files landing in the artifact tree.
Trial processes write the sidecar document last, so its appearance
means the study has fresh durable state. Events are debounced per study
directory (a completing trial touches its sidecar more than once), and
quiesced studies land in the StudyQueue.

The sync loop drains the queue on wakeup and mirrors just those
studies; independently, it runs a full pass over every discovered study
on a fixed interval, which also covers anything the watcher missed
while the daemon was down.

The sweep loop has no event source: retention is a time-based policy,
so it simply applies the checkpoint policy to every study on its own
interval.

# Lifecycle

All three components follow the same Start/Stop pattern:

	c.Start(ctx)  // spawns the background goroutine
	...
	c.Stop()      // cancels and waits for the goroutine to exit

The supervisor package wraps them as suture services; see
internal/supervisor/services.

# What Runs Where

Each loop opens study metadata stores on demand and closes them at the
end of the pass. Stores are not held open across passes: trial
processes own the write path, and the daemon is a polite secondary
reader.
*/
package daemon
