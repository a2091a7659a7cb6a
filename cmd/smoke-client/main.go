package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"wayfare.org/internal/credential"
	"wayfare.org/internal/fetch"
	"wayfare.org/internal/notify"
	"wayfare.org/internal/obs"
	"wayfare.org/internal/token"
	"wayfare.org/internal/transport"
	"wayfare.org/internal/travel"
)

func main() {
	obs.Init()
	if addr := os.Getenv("WAYFARE_METRICS_ADDR"); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", obs.Handler())
		go func() {
			if err := http.ListenAndServe(addr, mux); err != nil {
				log.Printf("metrics listener: %v", err)
			}
		}()
	}

	sceneryID := os.Getenv("WAYFARE_SCENERY_ID")
	if sceneryID == "" {
		sceneryID = "1"
	}

	var persist credential.Persister
	if dir := os.Getenv("WAYFARE_DATA_DIR"); dir != "" {
		p, err := credential.OpenBadger(dir)
		if err != nil {
			log.Fatalf("open session db: %v", err)
		}
		defer p.Close()
		persist = p
	}

	store := credential.NewStore(persist)
	if err := store.Restore(); err != nil {
		log.Fatalf("restore session: %v", err)
	}

	hub := notify.NewHub()
	eps := transport.EndpointsFromEnv()
	tokens := token.NewManager(store, nil, eps.Active)
	client := transport.New(eps, store, tokens, hub)
	svc := travel.NewService(client, store)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	go func() {
		for n := range hub.Subscribe(ctx) {
			log.Printf("notice: %s [%s] %s", n.Severity, n.Kind, n.Message)
		}
	}()

	if user, pass := os.Getenv("WAYFARE_USER"), os.Getenv("WAYFARE_PASS"); user != "" {
		cred, err := svc.Login(ctx, user, pass)
		if err != nil {
			log.Fatalf("login as %s: %v", user, err)
		}
		log.Printf("signed in as %s", cred.Principal.ID)
	}

	if err := svc.Health(ctx); err != nil {
		log.Fatalf("health check against %s: %v", eps.Active(), err)
	}

	page := travel.NewPage(svc, hub, sceneryID)
	page.Mount(ctx)

	deadline := time.Now().Add(30 * time.Second)
	for {
		if s := page.SceneryState(); s.Phase == fetch.PhaseSuccess || s.Phase == fetch.PhaseFailed {
			break
		}
		if time.Now().After(deadline) {
			log.Fatalf("scenery %s never settled", sceneryID)
		}
		time.Sleep(100 * time.Millisecond)
	}
	if st := page.SceneryState(); st.Phase == fetch.PhaseFailed {
		log.Fatalf("scenery %s failed after %d retries: %s", sceneryID, st.RetryCount, st.Err)
	}

	spot, _ := page.Scenery()
	log.Printf("loaded %q in %s (score %.1f)", spot.Name, spot.City, spot.Score)

	if store.Token() != "" {
		if err := page.ToggleLike(ctx); err != nil {
			log.Fatalf("toggle like: %v", err)
		}
		after, _ := page.Scenery()
		log.Printf("like toggled: liked=%v count=%d", after.Liked, after.LikeCount)
	}

	page.Refresh(ctx)
	deadline = time.Now().Add(30 * time.Second)
	for page.SceneryState().Phase == fetch.PhaseLoading {
		if time.Now().After(deadline) {
			log.Fatalf("refresh never settled")
		}
		time.Sleep(100 * time.Millisecond)
	}

	fmt.Printf("✅ wayfare client smoke test passed: scenery=%s endpoint=%s\n", spot.ID, eps.Active())
}
