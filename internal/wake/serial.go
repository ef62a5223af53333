package wake

import (
	"bufio"
	log "log/slog"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

const (
	wakeToken     = "WAKE_WORD_DETECTED"
	ackToken      = "ACK_WAKE\n"
	sleepingToken = "CHATBOT_SLEEPING\n"

	reconnectMin = time.Second
	reconnectMax = 30 * time.Second
)

// serialSource reads newline-delimited tokens from the wake-word
// microcontroller. A lost or missing device is not fatal: the reader keeps
// retrying with backoff and the daemon simply receives no wake events until
// the device is back.
type serialSource struct {
	portName string
	baud     int

	mu   sync.Mutex
	port serial.Port
	done chan struct{}
	wg   sync.WaitGroup
}

func newSerialSource(portName string, baud int) *serialSource {
	if baud <= 0 {
		baud = 115200
	}
	return &serialSource{portName: portName, baud: baud}
}

func (s *serialSource) Start(fire func(Event)) error {
	s.done = make(chan struct{})
	s.wg.Add(1)
	go s.loop(fire)
	return nil
}

func (s *serialSource) loop(fire func(Event)) {
	defer s.wg.Done()

	backoff := reconnectMin
	for {
		select {
		case <-s.done:
			return
		default:
		}

		port, err := serial.Open(s.portName, &serial.Mode{BaudRate: s.baud})
		if err != nil {
			log.Warn("wake channel unavailable", "port", s.portName, "err", err, "retry_in", backoff)
			select {
			case <-s.done:
				return
			case <-time.After(backoff):
			}
			if backoff *= 2; backoff > reconnectMax {
				backoff = reconnectMax
			}
			continue
		}

		log.Info("wake channel connected", "port", s.portName, "baud", s.baud)
		backoff = reconnectMin

		s.mu.Lock()
		s.port = port
		s.mu.Unlock()

		s.read(port, fire)

		s.mu.Lock()
		s.port = nil
		s.mu.Unlock()
		port.Close()
	}
}

// read consumes lines until the port errors out or Stop closes it.
func (s *serialSource) read(port serial.Port, fire func(Event)) {
	scanner := bufio.NewScanner(port)
	for scanner.Scan() {
		select {
		case <-s.done:
			return
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.Contains(line, wakeToken) {
			log.Info("wake word signal received")
			fire(Event{At: time.Now(), Source: "serial"})
			if _, err := port.Write([]byte(ackToken)); err != nil {
				log.Warn("wake ack write failed", "err", err)
			}
			continue
		}

		// Anything else is microcontroller chatter, useful when debugging.
		log.Debug("wake channel", "line", line)
	}

	if err := scanner.Err(); err != nil {
		select {
		case <-s.done:
			// Stop closed the port; the error is expected.
		default:
			log.Warn("wake channel read failed", "port", s.portName, "err", err)
		}
	}
}

func (s *serialSource) Stop() {
	if s.done == nil {
		return
	}
	close(s.done)

	s.mu.Lock()
	if s.port != nil {
		s.port.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *serialSource) NotifySleeping() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return
	}
	if _, err := s.port.Write([]byte(sleepingToken)); err != nil {
		log.Warn("sleep notification write failed", "err", err)
	}
}
