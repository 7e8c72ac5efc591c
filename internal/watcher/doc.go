// Package watcher reloads a serving process when a new index build lands.
//
// The build job writes meta.json last, so a change to that file marks a
// complete artifact set. The watcher observes the index directory with
// fsnotify, falls back to polling where fsnotify is unavailable (network
// mounts, some container volumes), debounces bursts of events, and hands
// each settled batch to a Reloader.
//
// Usage:
//
//	w, err := watcher.New(watcher.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//
//	r := watcher.NewReloader(w, svc, logger)
//	go r.Run(ctx, indexDir)
package watcher
