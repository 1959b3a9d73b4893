// Package fcneval evaluates FCN semantic segmentation models on the PASCAL
// VOC2011 seg11valid split.
//
// # Quick Start
//
//	ev, err := fcneval.New("fcn32s_from_caffe.pb")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ev.Close()
//
//	res, err := ev.Run(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	_ = fcneval.WriteReport(os.Stdout, res.Summary)
//	_ = fcneval.SaveVisualization("viz_evaluate.png", res.Visualization)
//
// Each image is scored on its own and the four statistics (pixel accuracy,
// mean class accuracy, mean IU and frequency weighted IU) are averaged over
// the images where they are defined.
//
// # Model Files
//
// The network graph is read from the model directory (default
// ~/data/models): fcn32s.onnx, or fcn32s_deconv.onnx with WithDeconv. The
// file passed to New holds the parameter values, either as a flat mapping of
// tensor names or wrapped under "model_state_dict".
//
// Evaluate runs the same loop over any Source and Scorer.
package fcneval
