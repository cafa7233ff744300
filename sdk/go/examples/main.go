package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"ChainScope-Agent/sdk/go/chainscope"
)

func main() {
	addr := flag.String("addr", "http://localhost:3001", "server base url")
	message := flag.String("message", "What is the current gas price on Ethereum?", "question to ask")
	async := flag.Bool("async", false, "submit as a background job and poll for the result")
	flag.Parse()

	client, err := chainscope.NewClient(*addr, nil)
	if err != nil {
		log.Fatal(err)
	}
	client.SetAPIKey(os.Getenv("CHAINSCOPE_API_KEY"))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	if !*async {
		resp, err := client.Chat(ctx, chainscope.ChatRequest{Message: *message})
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(resp.Response)
		fmt.Printf("session=%s iterations=%d tool_calls=%d\n", resp.SessionID, resp.Iterations, len(resp.ToolCalls))
		return
	}

	job, err := client.SubmitJob(ctx, chainscope.JobRequest{Message: *message})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("submitted job %s\n", job.ID)
	job, err = client.WaitForJob(ctx, job.ID, 2*time.Second)
	if err != nil {
		log.Fatal(err)
	}
	if job.Status == chainscope.JobFailed || job.Result == nil || job.Result.Data == nil {
		log.Fatalf("job %s failed after %d attempts: %s", job.ID, job.Attempts, job.LastError)
	}
	fmt.Println(job.Result.Data.Response)
}
