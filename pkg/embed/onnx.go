package embed

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// maxSequenceLength is the standard input window for the MiniLM family.
const maxSequenceLength = 128

// ONNXConfig configures the ONNX embedder.
type ONNXConfig struct {
	// ModelPath is the path to the ONNX model file.
	ModelPath string

	// TokenizerPath is the path to the tokenizer.json file.
	TokenizerPath string

	// LibraryPath optionally overrides the onnxruntime shared library
	// location. Empty uses the library default.
	LibraryPath string

	// Dimensions is the embedding vector size (default 384, all-MiniLM-L6-v2).
	Dimensions int
}

// ONNXEmbedder generates embeddings by running a sentence-transformer model
// through ONNX Runtime. The model load is expensive, so it happens lazily
// and at most once per process: concurrent first-callers block on the same
// load attempt instead of racing into a second one.
type ONNXEmbedder struct {
	cfg ONNXConfig

	initOnce  sync.Once
	initErr   error
	session   *ort.DynamicAdvancedSession
	tokenizer *wordPieceTokenizer
}

// NewONNX creates an ONNX embedder. The model is not loaded until Init or
// the first Embed call.
func NewONNX(cfg ONNXConfig) (*ONNXEmbedder, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("onnx embedder: ModelPath is required")
	}
	if cfg.TokenizerPath == "" {
		return nil, fmt.Errorf("onnx embedder: TokenizerPath is required")
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = 384
	}
	return &ONNXEmbedder{cfg: cfg}, nil
}

// Init loads the tokenizer and the inference session. Idempotent; safe
// under concurrent first use.
func (e *ONNXEmbedder) Init(ctx context.Context) error {
	e.initOnce.Do(func() {
		e.initErr = e.load()
	})
	return e.initErr
}

func (e *ONNXEmbedder) load() error {
	tokenizer, err := loadWordPieceTokenizer(e.cfg.TokenizerPath)
	if err != nil {
		return fmt.Errorf("onnx embedder: %w", err)
	}

	if e.cfg.LibraryPath != "" {
		ort.SetSharedLibraryPath(e.cfg.LibraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("onnx embedder: failed to initialize runtime: %w", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(e.cfg.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		nil,
	)
	if err != nil {
		return fmt.Errorf("onnx embedder: failed to create session: %w", err)
	}

	e.tokenizer = tokenizer
	e.session = session
	return nil
}

// Embed tokenizes the text, runs inference, mean-pools the token
// representations over attended positions, and L2-normalizes the result.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}
	if err := e.Init(ctx); err != nil {
		return nil, err
	}

	inputIDs, attentionMask := e.frame(text)

	shape := ort.NewShape(1, maxSequenceLength)
	inputTensor, err := ort.NewTensor(shape, inputIDs)
	if err != nil {
		return nil, fmt.Errorf("onnx embedder: failed to create input_ids tensor: %w", err)
	}
	defer inputTensor.Destroy()

	maskTensor, err := ort.NewTensor(shape, attentionMask)
	if err != nil {
		return nil, fmt.Errorf("onnx embedder: failed to create attention_mask tensor: %w", err)
	}
	defer maskTensor.Destroy()

	typeTensor, err := ort.NewTensor(shape, make([]int64, maxSequenceLength))
	if err != nil {
		return nil, fmt.Errorf("onnx embedder: failed to create token_type_ids tensor: %w", err)
	}
	defer typeTensor.Destroy()

	outputs := []ort.Value{nil}
	if err := e.session.Run([]ort.Value{inputTensor, maskTensor, typeTensor}, outputs); err != nil {
		return nil, fmt.Errorf("onnx embedder: inference failed: %w", err)
	}
	defer func() {
		for _, out := range outputs {
			if out != nil {
				out.Destroy()
			}
		}
	}()

	if len(outputs) == 0 || outputs[0] == nil {
		return nil, fmt.Errorf("onnx embedder: no output tensors returned")
	}
	outputTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("onnx embedder: unexpected output tensor type %T", outputs[0])
	}

	vector, err := e.pool(outputTensor, attentionMask)
	if err != nil {
		return nil, err
	}

	return l2Normalize(vector), nil
}

// Dimensions returns the embedding vector size.
func (e *ONNXEmbedder) Dimensions() int {
	return e.cfg.Dimensions
}

// Close releases the inference session.
func (e *ONNXEmbedder) Close() error {
	if e.session != nil {
		if err := e.session.Destroy(); err != nil {
			return err
		}
		e.session = nil
	}
	return nil
}

// frame lays the token ids into a fixed-length window with [CLS]/[SEP]
// markers and the matching attention mask.
func (e *ONNXEmbedder) frame(text string) (inputIDs, attentionMask []int64) {
	tokens := e.tokenizer.tokenize(text)
	if len(tokens) > maxSequenceLength-2 {
		tokens = tokens[:maxSequenceLength-2]
	}

	inputIDs = make([]int64, maxSequenceLength)
	attentionMask = make([]int64, maxSequenceLength)

	inputIDs[0] = clsTokenID
	attentionMask[0] = 1
	for i, id := range tokens {
		inputIDs[i+1] = id
		attentionMask[i+1] = 1
	}
	inputIDs[len(tokens)+1] = sepTokenID
	attentionMask[len(tokens)+1] = 1

	return inputIDs, attentionMask
}

// pool reduces the model output to a single vector. A [1, dims] output is
// already pooled; a [1, seq, dims] output is mean-pooled over positions the
// attention mask covers.
func (e *ONNXEmbedder) pool(t *ort.Tensor[float32], attentionMask []int64) ([]float32, error) {
	data := t.GetData()
	shape := t.GetShape()
	dims := e.cfg.Dimensions

	switch len(shape) {
	case 2:
		if len(data) < dims {
			return nil, fmt.Errorf("onnx embedder: output has %d values, expected %d", len(data), dims)
		}
		vector := make([]float32, dims)
		copy(vector, data[:dims])
		return vector, nil

	case 3:
		if shape[0] != 1 {
			return nil, fmt.Errorf("onnx embedder: expected batch size 1, got %d", shape[0])
		}
		if shape[2] != int64(dims) {
			return nil, fmt.Errorf("onnx embedder: hidden size %d does not match configured dimensions %d", shape[2], dims)
		}

		seqLen := int(shape[1])
		vector := make([]float32, dims)
		var attended float32
		for i := 0; i < seqLen && i < len(attentionMask); i++ {
			if attentionMask[i] == 0 {
				continue
			}
			attended++
			offset := i * dims
			for j := 0; j < dims; j++ {
				vector[j] += data[offset+j]
			}
		}
		if attended == 0 {
			return nil, fmt.Errorf("onnx embedder: attention mask covers no positions")
		}
		for j := range vector {
			vector[j] /= attended
		}
		return vector, nil

	default:
		return nil, fmt.Errorf("onnx embedder: unexpected output shape %v", shape)
	}
}
