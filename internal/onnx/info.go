package onnx

// ModelInfo contains basic information about a model without translating it.
type ModelInfo struct {
	IRVersion       int64
	OpsetVersion    int64
	ProducerName    string
	ProducerVersion string
	InputNames      []string
	OutputNames     []string
	NodeCount       int
	WeightCount     int
}

// Info extracts summary information from a decoded model.
func Info(m *ModelProto) *ModelInfo {
	info := &ModelInfo{
		IRVersion:       m.IRVersion,
		OpsetVersion:    m.OpsetVersion(),
		ProducerName:    m.ProducerName,
		ProducerVersion: m.ProducerVersion,
	}
	if m.Graph == nil {
		return info
	}

	// Graph inputs that are backed by an initializer are weights, not
	// user-supplied inputs.
	initNames := make(map[string]bool)
	for i := range m.Graph.Initializers {
		initNames[m.Graph.Initializers[i].Name] = true
	}
	for i := range m.Graph.Inputs {
		if !initNames[m.Graph.Inputs[i].Name] {
			info.InputNames = append(info.InputNames, m.Graph.Inputs[i].Name)
		}
	}
	for i := range m.Graph.Outputs {
		info.OutputNames = append(info.OutputNames, m.Graph.Outputs[i].Name)
	}
	info.NodeCount = len(m.Graph.Nodes)
	info.WeightCount = len(m.Graph.Initializers)
	return info
}
