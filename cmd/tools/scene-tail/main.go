// Command scene-tail prints frames streamed by a running pathview.
//
// Usage:
//
//	go run ./cmd/tools/scene-tail [flags]
//
// Flags:
//
//	-addr    Scene stream address (default: localhost:50061)
//	-tags    Comma-separated object tags to keep (default: path)
//	-n       Stop after n frames, 0 for no limit (default: 0)
//	-json    Print each frame as JSON instead of a summary line
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/banshee-data/pathview/internal/scene"
	"github.com/banshee-data/pathview/internal/scenestream"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
)

func main() {
	addr := flag.String("addr", "localhost:50061", "Scene stream address")
	tags := flag.String("tags", string(scene.TagPath), "Comma-separated object tags to keep (empty for all)")
	n := flag.Int("n", 0, "Stop after n frames (0 = no limit)")
	asJSON := flag.Bool("json", false, "Print frames as JSON")
	flag.Parse()

	var req scenestream.Request
	for _, t := range strings.Split(*tags, ",") {
		if t = strings.TrimSpace(t); t != "" {
			req.Tags = append(req.Tags, scene.Tag(t))
		}
	}
	req.MaxFrames = *n
	msg, err := scenestream.NewRequest(req)
	if err != nil {
		log.Fatalf("Invalid request: %v", err)
	}

	conn, err := grpc.NewClient(*addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stream, err := scenestream.NewSceneServiceClient(conn).StreamScene(ctx, msg)
	if err != nil {
		log.Fatalf("Failed to open stream: %v", err)
	}

	for {
		frame, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Fatalf("Stream error: %v", err)
		}

		if *asJSON {
			b, err := protojson.Marshal(frame)
			if err != nil {
				log.Fatalf("Failed to encode frame: %v", err)
			}
			fmt.Println(string(b))
			continue
		}

		f := frame.GetFields()
		fmt.Printf("frame %.0f %.0fx%.0f objects=%d\n",
			f["number"].GetNumberValue(),
			f["width"].GetNumberValue(),
			f["height"].GetNumberValue(),
			len(f["objects"].GetListValue().GetValues()))
	}
}
