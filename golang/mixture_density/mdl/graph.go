package mdl

import (
	"fmt"
	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
)

//DrawGraph renders the architecture of the network as a layered graph:
//the feature input, the two hidden layers and the three mixture heads.
func (model *MixtureDensity) DrawGraph() (*graphviz.Graphviz, *cgraph.Graph) {
	graphViz := graphviz.New()
	graph, err := graphViz.Graph()
	HandleError(err)

	input, err := graph.CreateNode("input")
	HandleError(err)
	input.Set("label", fmt.Sprintf("features\nwidth %d", model.Params.InputDim()))

	hidden1, err := graph.CreateNode("hidden_1")
	HandleError(err)
	hidden1.Set("label", fmt.Sprintf("tanh\nwidth %d", model.Params.HiddenSize()))

	hidden2, err := graph.CreateNode("hidden_2")
	HandleError(err)
	hidden2.Set("label", fmt.Sprintf("tanh\nwidth %d", model.Params.HiddenSize()))

	headWeights, err := graph.CreateNode("pi")
	HandleError(err)
	headWeights.Set("label", fmt.Sprintf("softmax head\nK = %d", model.KComponents))
	headWeights.Set("shape", "box")

	headMeans, err := graph.CreateNode("mu")
	HandleError(err)
	headMeans.Set("label", fmt.Sprintf("identity head\nK = %d", model.KComponents))
	headMeans.Set("shape", "box")

	headStdDevs, err := graph.CreateNode("sigma")
	HandleError(err)
	headStdDevs.Set("label", fmt.Sprintf("exp head\nK = %d\nfloor %g", model.KComponents, model.SigmaFloor))
	headStdDevs.Set("shape", "box")

	graph.CreateEdge("", input, hidden1)
	graph.CreateEdge("", hidden1, hidden2)
	graph.CreateEdge("", hidden2, headWeights)
	graph.CreateEdge("", hidden2, headMeans)
	graph.CreateEdge("", hidden2, headStdDevs)

	return graphViz, graph
}

//RenderNetwork renders the architecture of the network into a figure file.
func (model *MixtureDensity) RenderNetwork(filename, figureType string) {
	graphvizType := map[string]graphviz.Format{
		"png": graphviz.PNG,
		"svg": graphviz.SVG,
		"jpg": graphviz.JPG,
	}[figureType]

	graphViz, graph := model.DrawGraph()
	HandleError(graphViz.RenderFilename(graph, graphvizType, filename))
}
