package main

import (
	"encoding/binary"
	"flag"
	"io"
	"log"
	"net"
	"os"
	"time"

	tcpapi "wyoming-stt-bridge/internal/api/tcp"
	"wyoming-stt-bridge/internal/service/audio"
	"wyoming-stt-bridge/internal/wyoming"
)

// WAV header is 44 bytes for standard PCM files
const wavHeaderSize = 44

// At 16kHz 16-bit mono = 32000 bytes/second
// 100ms chunks = 3200 bytes
const chunkSize = 3200
const chunkIntervalMs = 100

func main() {
	audioFile := flag.String("audio", "testdata/sample-16khz.wav", "Path to WAV file (16-bit mono PCM)")
	serverURI := flag.String("server", "tcp://localhost:10301", "Wyoming server URI")
	realtime := flag.Bool("realtime", true, "Pace chunks in real time")
	flag.Parse()

	f, err := os.Open(*audioFile)
	if err != nil {
		log.Fatalf("Failed to open audio file: %v", err)
	}
	defer f.Close()

	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(f, header); err != nil {
		log.Fatalf("Failed to read WAV header: %v", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		log.Fatal("Not a valid WAV file")
	}

	audioFormat := binary.LittleEndian.Uint16(header[20:22])
	numChannels := binary.LittleEndian.Uint16(header[22:24])
	sampleRate := binary.LittleEndian.Uint32(header[24:28])
	bitsPerSample := binary.LittleEndian.Uint16(header[34:36])

	log.Printf("WAV file: format=%d channels=%d sampleRate=%d bitsPerSample=%d",
		audioFormat, numChannels, sampleRate, bitsPerSample)

	if audioFormat != 1 || bitsPerSample != 16 || numChannels != 1 {
		log.Fatal("Only 16-bit mono PCM is supported")
	}
	if sampleRate != 16000 {
		log.Printf("Warning: Sample rate is %d Hz; the server transcribes at its configured rate", sampleRate)
	}

	network, address, err := tcpapi.ParseURI(*serverURI)
	if err != nil {
		log.Fatal(err)
	}
	conn, err := net.DialTimeout(network, address, 5*time.Second)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()
	log.Printf("Connected to %s", *serverURI)

	w := wyoming.NewWriter(conn)
	r := wyoming.NewReader(conn, wyoming.DefaultLimits())
	format := wyoming.AudioFormat{Rate: int(sampleRate), Width: 2, Channels: 1}

	if err := w.WriteEvent(wyoming.AudioStart{AudioFormat: format}.Event()); err != nil {
		log.Fatalf("Failed to send audio-start: %v", err)
	}

	buf := make([]byte, chunkSize)
	var totalBytes int64
	var chunkNum int
	startTime := time.Now()

	for {
		n, err := f.Read(buf)
		if n > 0 {
			chunkNum++
			totalBytes += int64(n)
			chunk := wyoming.AudioChunk{AudioFormat: format, Audio: buf[:n]}
			if err := w.WriteEvent(chunk.Event()); err != nil {
				log.Fatalf("Failed to send chunk: %v", err)
			}
			if chunkNum%10 == 0 {
				log.Printf("Sent chunk %d (%d bytes total)", chunkNum, totalBytes)
			}
			if *realtime {
				time.Sleep(chunkIntervalMs * time.Millisecond)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatalf("Failed to read audio: %v", err)
		}
	}

	if err := w.WriteEvent(wyoming.AudioStop{}.Event()); err != nil {
		log.Fatalf("Failed to send audio-stop: %v", err)
	}
	log.Printf("Finished streaming: %d chunks, %d bytes in %v", chunkNum, totalBytes, time.Since(startTime))

	if err := conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		log.Fatal(err)
	}
	for {
		ev, err := r.ReadEvent()
		if err != nil {
			log.Fatalf("Failed to read reply: %v", err)
		}
		switch ev.Type {
		case wyoming.TypeTranscript:
			log.Printf("Transcript: %q", wyoming.TranscriptFromEvent(ev).Text)
			return
		case wyoming.TypeError:
			e := wyoming.ErrorFromEvent(ev)
			if e.Code == audio.CodeBufferOverflow {
				log.Printf("Server warning: %s", e.Text)
				continue
			}
			log.Fatalf("Server error [%s]: %s", e.Code, e.Text)
		}
	}
}
